package entities

// DisplayOptions accompany a value written to an output slot.
type DisplayOptions struct {
	// MIMEType overrides the media type the host uses to render the value.
	MIMEType string `json:"mime_type,omitempty"`

	// Raw marks the value as already rendered; the host shows it verbatim.
	Raw bool `json:"raw,omitempty"`
}

// SlotState is the content currently held by an output slot.
type SlotState struct {
	Value   any            `json:"value"`
	Options DisplayOptions `json:"options"`
	Filled  bool           `json:"filled"`
}
