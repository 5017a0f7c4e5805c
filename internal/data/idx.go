package data

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	idxUbyte = 0x08
	// maxIDXBytes bounds the payload a header may announce.
	maxIDXBytes = 1 << 30
)

// readIDX parses an IDX file (big-endian header, unsigned byte payload) and
// returns its dimensions and raw payload. tail is the required size of every
// dimension after the first and is checked before the payload is allocated.
func readIDX(r io.Reader, tail ...int) ([]int, []byte, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("cabeçalho IDX: %w", err)
	}
	if magic[0] != 0 || magic[1] != 0 {
		return nil, nil, fmt.Errorf("magic IDX inválido: % x", magic)
	}
	if magic[2] != idxUbyte {
		return nil, nil, fmt.Errorf("tipo IDX não suportado: 0x%02x", magic[2])
	}
	nd := int(magic[3])
	if nd != len(tail)+1 {
		return nil, nil, fmt.Errorf("IDX com %d dimensões, esperado %d", nd, len(tail)+1)
	}
	dims := make([]int, nd)
	total := 1
	for i := range dims {
		var v uint32
		if err := binary.Read(br, binary.BigEndian, &v); err != nil {
			return nil, nil, fmt.Errorf("dimensão %d: %w", i, err)
		}
		dims[i] = int(v)
		if i > 0 && dims[i] != tail[i-1] {
			return nil, nil, fmt.Errorf("dimensão %d = %d, esperado %d", i, dims[i], tail[i-1])
		}
		if dims[i] > 0 && total > maxIDXBytes/dims[i] {
			return nil, nil, fmt.Errorf("payload IDX acima de %d bytes", maxIDXBytes)
		}
		total *= dims[i]
	}
	payload := make([]byte, total)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, nil, fmt.Errorf("payload IDX (%d bytes): %w", total, err)
	}
	return dims, payload, nil
}

type idxPart struct {
	pixels []byte
	labels []byte
}

// decodeIDXPart reads one images/labels pair and checks it against the
// 28x28 schema.
func decodeIDXPart(images, labels io.Reader) (idxPart, error) {
	idims, pix, err := readIDX(images, ImageSide, ImageSide)
	if err != nil {
		return idxPart{}, fmt.Errorf("imagens: %w", err)
	}
	ldims, lab, err := readIDX(labels)
	if err != nil {
		return idxPart{}, fmt.Errorf("rótulos: %w", err)
	}
	if ldims[0] != idims[0] {
		return idxPart{}, fmt.Errorf("rótulos com dimensões %v para %d imagens", ldims, idims[0])
	}
	return idxPart{pixels: pix, labels: lab}, nil
}

// assembleIDX concatenates the parts, in order, into one dataset.
func assembleIDX(name string, parts ...idxPart) (*Dataset, error) {
	n := 0
	for _, p := range parts {
		n += len(p.labels)
	}
	ds := New(name, PixelColumns(NumFeatures), n)
	row := 0
	for _, p := range parts {
		for i, l := range p.labels {
			if l > 9 {
				return nil, fmt.Errorf("rótulo %d fora de 0-9 na linha %d", l, row)
			}
			base := i * NumFeatures
			for j := 0; j < NumFeatures; j++ {
				ds.cols[j][row] = float64(p.pixels[base+j])
			}
			ds.Labels[row] = int(l)
			row++
		}
	}
	return ds, nil
}
