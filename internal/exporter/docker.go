package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/terra-clan/part-configurator/internal/models"
)

// DockerConfig holds settings for running converter containers
type DockerConfig struct {
	Host       string
	Image      string
	Network    string
	PullPolicy string // always, if-not-present, never
	OutputDir  string // host directory mounted at /exports
}

// DockerDispatcher runs one converter container per export job. The
// container reports back through the job's callback URL.
type DockerDispatcher struct {
	docker *client.Client
	config DockerConfig
}

// NewDockerDispatcher creates a Docker client for cfg.Host
func NewDockerDispatcher(cfg DockerConfig) (*DockerDispatcher, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker dispatcher requires a converter image")
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(cfg.Host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerDispatcher{docker: cli, config: cfg}, nil
}

// Dispatch pulls the converter image if needed and starts a container for job
func (d *DockerDispatcher) Dispatch(ctx context.Context, job *models.ExportJob) error {
	if err := d.pullImage(ctx); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}

	cfg, hostCfg, err := containerSpec(d.config, job)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("export-%d-%s", job.ExportID, shortID(job.JobID))
	resp, err := d.docker.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}

	slog.Info("export container started", "export", job.ExportID, "job_id", job.JobID, "container", resp.ID)
	return nil
}

// pullImage pulls the converter image according to the pull policy
func (d *DockerDispatcher) pullImage(ctx context.Context) error {
	if d.config.PullPolicy == "never" {
		return nil
	}

	// Check if image exists
	_, _, err := d.docker.ImageInspectWithRaw(ctx, d.config.Image)
	if err == nil && d.config.PullPolicy != "always" {
		return nil
	}

	slog.Info("pulling image", "image", d.config.Image)
	out, err := d.docker.ImagePull(ctx, d.config.Image, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer out.Close()

	_, _ = io.Copy(io.Discard, out)
	return nil
}

// containerSpec builds the converter container for job. The job is passed
// as JSON in EXPORT_JOB alongside a few flat variables.
func containerSpec(cfg DockerConfig, job *models.ExportJob) (*container.Config, *container.HostConfig, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal export job: %w", err)
	}

	env := []string{
		"EXPORT_JOB=" + string(payload),
		"EXPORT_ID=" + strconv.FormatInt(job.ExportID, 10),
		"EXPORT_JOB_ID=" + job.JobID,
		"EXPORT_FORMAT=" + string(job.Format),
	}
	if job.CallbackURL != "" {
		env = append(env, "EXPORT_CALLBACK_URL="+job.CallbackURL)
	}

	labels := map[string]string{
		"configurator.managed":   "true",
		"configurator.export.id": strconv.FormatInt(job.ExportID, 10),
		"configurator.job.id":    job.JobID,
		"configurator.format":    strings.ToLower(string(job.Format)),
	}
	for k, v := range job.Labels {
		labels[k] = v
	}

	containerConfig := &container.Config{
		Image:  cfg.Image,
		Env:    env,
		Labels: labels,
	}

	hostConfig := &container.HostConfig{
		AutoRemove: true,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}
	if cfg.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(cfg.Network)
	}
	if cfg.OutputDir != "" {
		hostConfig.Binds = []string{cfg.OutputDir + ":/exports"}
	}

	return containerConfig, hostConfig, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Ping checks Docker connectivity
func (d *DockerDispatcher) Ping(ctx context.Context) error {
	if _, err := d.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close closes the Docker client
func (d *DockerDispatcher) Close() error {
	return d.docker.Close()
}
