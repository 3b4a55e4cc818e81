package common

// ElementHeader is the generalized tag-length-value header produced by
// a format-specific decoder and consumed by Walk. Offsets are relative
// to the window being walked.
type ElementHeader struct {
	ID           uint64
	Tag          string // four-char tag for RIFF/PNG/MP4 style formats, else ""
	DeclaredSize int64  // payload size; meaningless when SizeUnknown
	HeaderLen    int64  // bytes occupied by the header itself, >= 1
	DataStart    int64  // window-relative offset of the payload
	SizeUnknown  bool   // EBML "unknown size" marker
}

// DecodeHeaderFunc decodes one element header at off, reporting false
// when no further header can be decoded (short data, bad signature).
type DecodeHeaderFunc func(w Window, off int64) (ElementHeader, bool)

// EmitFunc receives each decoded header together with its payload
// window (clamped to the walked window). Returning false stops the
// walk, which is how sentinel-terminated sequences (GIF trailer, FLAC
// last-block flag, DT_NULL) bail out early.
type EmitFunc func(h ElementHeader, payload Window) bool

// WalkConfig bounds one container walk. MaxItems is format-specific
// and chosen to comfortably exceed legitimate files while bounding
// worst-case work on crafted input.
type WalkConfig struct {
	MaxItems      int
	MinHeaderSize int64
	Label         string // used in issue messages, e.g. "RIFF chunk"
}

// Walk runs the bounded tag-length-value loop shared by every
// container format here: decode a header, validate it against the
// remaining window, emit it, advance. It terminates on end of window,
// header decode failure, an unknown-size element, a non-advancing
// cursor, truncation, or the item cap; the first three are silent,
// the rest record an issue. Elements already emitted stay valid no
// matter how the walk ends.
//
// Walk returns the window-relative offset one past the last consumed
// byte, which callers use for tail/overlay accounting.
func Walk(w Window, decode DecodeHeaderFunc, cfg WalkConfig, issues *Issues, emit EmitFunc) int64 {
	label := cfg.Label
	if label == "" {
		label = "element"
	}
	cursor := int64(0)
	count := 0
	for cursor+cfg.MinHeaderSize <= w.Size() {
		if count >= cfg.MaxItems {
			issues.Addf("%s walk stopped: more than %d items", label, cfg.MaxItems)
			break
		}
		h, ok := decode(w, cursor)
		if !ok {
			break
		}
		payload := clampPayload(w, h)
		keepGoing := emit(h, payload)
		if !keepGoing {
			next, ok := AddOffsets(h.DataStart, h.DeclaredSize)
			if ok && !h.SizeUnknown && next <= w.Size() {
				cursor = next
			}
			break
		}
		if h.SizeUnknown {
			// Cannot compute the next cursor; the caller decides the
			// fallback (EBML tolerates this only for Segment).
			break
		}
		next, ok := AddOffsets(h.DataStart, h.DeclaredSize)
		if !ok {
			issues.Addf("%s at offset %d: size overflows", label, cursor)
			break
		}
		if next <= cursor {
			issues.Addf("%s at offset %d: non-advancing element", label, cursor)
			break
		}
		if next > w.Size() {
			issues.Addf("%s at offset %d: truncated element (declared end %d, window end %d)",
				label, cursor, next, w.Size())
			cursor = w.Size()
			break
		}
		cursor = next
		count++
	}
	return cursor
}

// clampPayload builds the payload window for an emitted header,
// trimming a declared size that runs past the walked window. The
// truncation itself is reported by the walk loop, not here.
func clampPayload(w Window, h ElementHeader) Window {
	if h.SizeUnknown {
		tail, ok := w.Tail(h.DataStart)
		if !ok {
			return Window{}
		}
		return tail
	}
	size := h.DeclaredSize
	if avail := w.Size() - h.DataStart; size > avail {
		size = avail
	}
	if size < 0 {
		size = 0
	}
	payload, ok := w.Slice(h.DataStart, size)
	if !ok {
		return Window{}
	}
	return payload
}
