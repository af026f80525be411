package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Binary mesh file layout (little-endian):
//
//	uint32 magic, uint32 version, uint32 area count
//	per area: uint32 id, uint32 attributes,
//	          float32[3] center, float32[3] nw corner, float32[3] se corner,
//	          uint32 connection count, uint32[n] target area ids
const (
	FileMagic   uint32 = 0xFEEDFACE
	FileVersion uint32 = 1
)

// MeshExt is the on-disk extension for mesh files.
const MeshExt = ".nav"

// FilePathForLevel derives the mesh file path for a level name: the level
// name's extension is stripped and the result joined under dir.
// "cp_dustbowl.bsp" -> "<dir>/cp_dustbowl.nav".
func FilePathForLevel(dir, levelName string) string {
	base := filepath.Base(levelName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+MeshExt)
}

// Load reads and parses the mesh file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", path, err)
	}

	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing mesh %s: %w", path, err)
	}

	f.Path = path
	base := filepath.Base(path)
	f.Level = strings.TrimSuffix(base, filepath.Ext(base))
	return f, nil
}

// Parse decodes a binary mesh from r.
func Parse(r io.Reader) (*File, error) {
	var magic, version uint32
	if err := readU32(r, &magic); err != nil {
		return nil, err
	}
	if magic != FileMagic {
		return nil, fmt.Errorf("bad magic 0x%08X", magic)
	}
	if err := readU32(r, &version); err != nil {
		return nil, err
	}
	if version != FileVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}

	var count uint32
	if err := readU32(r, &count); err != nil {
		return nil, err
	}

	f := &File{
		Areas: make([]Area, 0, count),
		byID:  make(map[uint32]int, count),
	}

	// Connection targets reference areas by mesh ID; areas may appear in
	// any order, so targets are resolved in a second pass.
	connIDs := make([][]uint32, 0, count)

	for i := range count {
		var a Area
		if err := readU32(r, &a.ID); err != nil {
			return nil, fmt.Errorf("area %d: %w", i, err)
		}
		if err := readU32(r, &a.Attributes); err != nil {
			return nil, fmt.Errorf("area %d: %w", i, err)
		}
		for _, v := range []*mgl32.Vec3{&a.Center, &a.NWCorner, &a.SECorner} {
			if err := readVec3(r, v); err != nil {
				return nil, fmt.Errorf("area %d: %w", i, err)
			}
		}

		var nconn uint32
		if err := readU32(r, &nconn); err != nil {
			return nil, fmt.Errorf("area %d: %w", i, err)
		}
		ids := make([]uint32, nconn)
		for j := range ids {
			if err := readU32(r, &ids[j]); err != nil {
				return nil, fmt.Errorf("area %d connection %d: %w", i, j, err)
			}
		}

		if _, dup := f.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate area id %d", a.ID)
		}
		f.byID[a.ID] = len(f.Areas)
		f.Areas = append(f.Areas, a)
		connIDs = append(connIDs, ids)
	}

	for i, ids := range connIDs {
		area := &f.Areas[i]
		area.Connections = make([]int, 0, len(ids))
		for _, id := range ids {
			target, ok := f.byID[id]
			if !ok {
				return nil, fmt.Errorf("area %d: connection to unknown area id %d", area.ID, id)
			}
			area.Connections = append(area.Connections, target)
		}
	}

	return f, nil
}

// Encode writes f in the binary mesh format. Inverse of Parse.
func Encode(w io.Writer, f *File) error {
	for _, v := range []uint32{FileMagic, FileVersion, uint32(len(f.Areas))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for i := range f.Areas {
		a := &f.Areas[i]
		if err := binary.Write(w, binary.LittleEndian, []uint32{a.ID, a.Attributes}); err != nil {
			return err
		}
		for _, v := range []mgl32.Vec3{a.Center, a.NWCorner, a.SECorner} {
			if err := binary.Write(w, binary.LittleEndian, [3]float32(v)); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(a.Connections))); err != nil {
			return err
		}
		for _, target := range a.Connections {
			if err := binary.Write(w, binary.LittleEndian, f.Areas[target].ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func readU32(r io.Reader, v *uint32) error {
	return binary.Read(r, binary.LittleEndian, v)
}

func readVec3(r io.Reader, v *mgl32.Vec3) error {
	var raw [3]float32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return err
	}
	*v = mgl32.Vec3{raw[0], raw[1], raw[2]}
	return nil
}
