package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelLocal  = "local"
	LabelRemote = "remote"
)
