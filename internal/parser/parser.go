package parser

// Parser is fed transport reads of arbitrary size and reports once the header
// section is fully parsed. Bytes following the header boundary are handed back
// via rest untouched.
type Parser interface {
	Parse(data []byte) (headersCompleted bool, rest []byte, err error)
}
