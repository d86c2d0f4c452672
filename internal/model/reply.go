package model

// Reply is what the negotiation state machine sends back over the chat
// channel: one or more text messages plus optional barcode images.
type Reply struct {
	Messages []string     `json:"messages"`
	Images   []ReplyImage `json:"images,omitempty"`
}

// ReplyImage references a saved barcode asset to deliver alongside a reply.
type ReplyImage struct {
	Caption string `json:"caption"`
	Path    string `json:"path"`
}
