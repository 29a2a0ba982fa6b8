package core

// FramePump supplies one frame of intensity values to a transport. The pump
// is chosen when the channel is configured and is read by the transport from
// StartNewFrame until MoreDataToSend returns false.
//
// Pumps run in interrupt context on serial channels and must not allocate
// or block in StartNewFrame, MoreDataToSend or NextIntensityToSend.
type FramePump interface {
	// StartNewFrame rewinds the cursor to the first value of the frame
	StartNewFrame()

	// MoreDataToSend reports whether values remain in the current frame
	MoreDataToSend() bool

	// NextIntensityToSend returns the next value and advances the cursor.
	// Returns 0 past the end of the frame.
	NextIntensityToSend() uint8

	// IntensityMultiplier scales 8-bit values to the chipset's intensity
	// width (257 maps 0xFF to 0xFFFF).
	IntensityMultiplier() uint32

	// FrameLength is an upper bound on the values in one frame, used to
	// size transmit buffers ahead of time.
	FrameLength() int
}
