package preview

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/qmuntal/gltf"
)

const glbMagic = "glTF"

var (
	ErrNotGLB       = errors.New("not a binary glTF file")
	ErrInvalidModel = errors.New("invalid glTF model")
)

// NodeInfo is one node of the model's scene graph
type NodeInfo struct {
	Index    int        `json:"index"`
	Name     string     `json:"name"`
	Mesh     string     `json:"mesh,omitempty"`
	Children []NodeInfo `json:"children,omitempty"`
}

// ModelInfo summarises a binary glTF asset
type ModelInfo struct {
	Version string     `json:"version"`
	Size    int64      `json:"size"`
	Nodes   int        `json:"nodes"`
	Meshes  int        `json:"meshes"`
	Scenes  int        `json:"scenes"`
	Roots   []NodeInfo `json:"roots"`
}

// InspectFile opens path and inspects it as a GLB asset
func InspectFile(path string) (*ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Inspect(f)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Inspect decodes a GLB stream. Plain JSON glTF is rejected with ErrNotGLB.
func Inspect(r io.Reader) (*ModelInfo, error) {
	cr := &countingReader{r: r}
	br := bufio.NewReader(cr)

	magic, err := br.Peek(len(glbMagic))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotGLB
		}
		return nil, err
	}
	if string(magic) != glbMagic {
		return nil, ErrNotGLB
	}

	var doc gltf.Document
	if err := gltf.NewDecoder(br).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if _, err := io.Copy(io.Discard, br); err != nil {
		return nil, err
	}

	return &ModelInfo{
		Version: doc.Asset.Version,
		Size:    cr.n,
		Nodes:   len(doc.Nodes),
		Meshes:  len(doc.Meshes),
		Scenes:  len(doc.Scenes),
		Roots:   buildTree(&doc),
	}, nil
}

// buildTree returns the nodes that are nobody's child, with their subtrees.
// Out of range references and cycles are skipped.
func buildTree(doc *gltf.Document) []NodeInfo {
	isChild := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}

	var build func(i int, seen map[int]bool) NodeInfo
	build = func(i int, seen map[int]bool) NodeInfo {
		seen[i] = true
		defer delete(seen, i)

		n := doc.Nodes[i]
		out := NodeInfo{Index: i, Name: n.Name}
		if out.Name == "" {
			out.Name = fmt.Sprintf("Node_%d", i)
		}
		if n.Mesh != nil {
			m := *n.Mesh
			if m >= 0 && m < len(doc.Meshes) && doc.Meshes[m].Name != "" {
				out.Mesh = doc.Meshes[m].Name
			} else {
				out.Mesh = fmt.Sprintf("Mesh_%d", m)
			}
		}
		for _, c := range n.Children {
			if c < 0 || c >= len(doc.Nodes) || seen[c] {
				continue
			}
			out.Children = append(out.Children, build(c, seen))
		}
		return out
	}

	roots := []NodeInfo{}
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, build(i, map[int]bool{}))
		}
	}
	return roots
}

// WriteTree prints the node hierarchy, two spaces per level
func (m *ModelInfo) WriteTree(w io.Writer) error {
	var write func(n NodeInfo, depth int) error
	write = func(n NodeInfo, depth int) error {
		line := strings.Repeat("  ", depth) + "- " + n.Name
		if n.Mesh != "" {
			line += " [Mesh: " + n.Mesh + "]"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := write(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range m.Roots {
		if err := write(r, 0); err != nil {
			return err
		}
	}
	return nil
}
