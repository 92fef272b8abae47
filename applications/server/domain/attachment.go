package domain

import "io"

// Attachment is one file part of an inbound email.
type Attachment struct {
	FieldName   string
	Filename    string
	ContentType string
	Encoding    string
	Body        io.Reader
}

// StoredObject is an attachment persisted at Path in the store.
type StoredObject struct {
	Path string
	Size int64
}

// Batch groups the objects written for one request under a single namespace.
type Batch struct {
	Namespace string
	Objects   []StoredObject
}
