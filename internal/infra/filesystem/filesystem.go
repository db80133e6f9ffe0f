// Package filesystem declares how deployment state reaches the disk. The
// ledger keeps JSON documents and the output generator writes rendered files.
package filesystem

type (
	// DocumentReader loads a JSON document. Numbers decode as json.Number so
	// chain ids and wei amounts keep full precision.
	DocumentReader interface {
		ReadJSON(path string, target any) error
	}

	// DocumentWriter stores a JSON document, atomically replacing the
	// previous one.
	DocumentWriter interface {
		WriteJSON(path string, data any) error
	}

	// FileWriter atomically replaces a file with already rendered content.
	FileWriter interface {
		WriteBytes(path string, data []byte) error
	}
)
