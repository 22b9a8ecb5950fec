package mizar

import (
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// Fingerprint computes the deterministic digest identifying "what will be
// built": name, version, the literal source specifiers, the patch list and
// the build system/configure/build commands, in that fixed order. Checksums
// and the check/install commands are deliberately excluded; they change how
// a build is verified or installed, not what is built.
func (d *Descriptor) Fingerprint() string {
	fields := []string{d.Name, d.Version, fmt.Sprintf("%d", len(d.Sources))}
	for _, s := range d.Sources {
		fields = append(fields, s.Raw)
	}
	// The list lengths keep a specifier moving between the source and patch
	// lists from producing the same byte sequence.
	fields = append(fields, fmt.Sprintf("%d", len(d.Patches)))
	fields = append(fields, d.Patches...)
	fields = append(fields, d.Build.System, d.Build.Configure, d.Build.Build)

	// The descriptor file is line-oriented, so no field can contain a
	// newline and a plain join is unambiguous.
	h := blake3.New(32, nil)
	h.Write([]byte(strings.Join(fields, "\n")))
	return fmt.Sprintf("%x", h.Sum(nil))
}
