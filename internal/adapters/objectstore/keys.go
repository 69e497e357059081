package objectstore

import "path"

// Object key layout under the inbox bucket. Keys are deterministic per
// message so re-processing overwrites instead of accumulating.
const (
	rawPrefix        = "inbox/raw"
	attachmentPrefix = "inbox/attachments"
	extractionPrefix = "inbox/extraction"
)

// RawKey addresses the full source message payload.
func RawKey(messageID string) string {
	return path.Join(rawPrefix, messageID+".json")
}

// AttachmentKey addresses one attachment of a message.
func AttachmentKey(messageID, filename string) string {
	return path.Join(attachmentPrefix, messageID, path.Base(filename))
}

// ExtractionKey addresses the extraction result snapshot for an invoice.
func ExtractionKey(invoiceID string) string {
	return path.Join(extractionPrefix, invoiceID+".json")
}
