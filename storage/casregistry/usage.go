package casregistry

import (
	"fmt"
	"io"
)

// Usage restricts which programs accept a backend.
type Usage uint8

const (
	// UsageCLI marks backends offered by xdao-ledger.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends offered by xdao-noded.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }

// WriteList prints one "name<TAB>description" line per backend allowed for usage.
func WriteList(w io.Writer, usage Usage) error {
	for _, b := range List(usage) {
		var err error
		if b.Description == "" {
			_, err = fmt.Fprintln(w, b.Name)
		} else {
			_, err = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
