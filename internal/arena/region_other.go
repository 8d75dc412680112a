//go:build !unix

package arena

const pageSize = 4096

// region is a heap buffer; read-only is enforced by Arena's flag only.
type region struct {
	mem []byte
}

func mapRegion(size int) (region, error) {
	size = (size + pageSize - 1) / pageSize * pageSize
	return region{mem: make([]byte, size)}, nil
}

func (r region) bytes() []byte { return r.mem }

func (region) protect(bool) error { return nil }

func (region) unmap() error { return nil }
