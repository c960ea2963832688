package ganglia

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// charsetReader accepts the ISO-8859-1 declaration gmetad writes by default,
// under any of its IANA aliases. Any other non-UTF-8 charset is rejected.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc != charmap.ISO8859_1 {
		return nil, fmt.Errorf("unsupported charset %s", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
