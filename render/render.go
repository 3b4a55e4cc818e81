// Package render turns probe results into terminal text or ordered
// dictionaries for JSON output. Both renderers are pure and tolerate
// every optional field being absent.
package render

import (
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"

	"binspect/asfscan"
	"binspect/common"
	"binspect/ebmlscan"
	"binspect/elfscan"
	"binspect/flacscan"
	"binspect/gifscan"
	"binspect/gzipscan"
	"binspect/mp4scan"
	"binspect/pescan"
	"binspect/pngscan"
	"binspect/probe"
	"binspect/riffscan"
	"binspect/zipscan"
)

// Text renders one probe result for the terminal.
func Text(name string, res probe.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", name, res.Format)
	switch f := res.Value.(type) {
	case *pescan.File:
		textPE(&sb, f)
	case *elfscan.File:
		textELF(&sb, f)
	case *ebmlscan.File:
		textEBML(&sb, f)
	case *riffscan.File:
		textRIFF(&sb, f)
	case *flacscan.File:
		textFLAC(&sb, f)
	case *zipscan.File:
		textZIP(&sb, f)
	case *gifscan.File:
		fmt.Fprintf(&sb, "  GIF%s %dx%d, %d image(s)\n", f.Version, f.Width, f.Height, len(f.Images))
	case *pngscan.File:
		if f.Header != nil {
			fmt.Fprintf(&sb, "  PNG %dx%d, %d chunk(s)\n", f.Header.Width, f.Header.Height, len(f.Chunks))
		}
	case *asfscan.File:
		textASF(&sb, f)
	case *mp4scan.File:
		fmt.Fprintf(&sb, "  brand %s, %.1fs\n", f.MajorBrand, f.DurationSeconds)
	case *gzipscan.File:
		fmt.Fprintf(&sb, "  name %q, os %s, isize %d\n", f.Name, f.OSName, f.ISize)
	}
	for _, issue := range res.Issues {
		fmt.Fprintf(&sb, "  issue: %s\n", issue)
	}
	return sb.String()
}

func textPE(sb *strings.Builder, f *pescan.File) {
	bits := 32
	if f.Is64Bit {
		bits = 64
	}
	machine := ""
	if f.FileHeader != nil {
		machine = f.FileHeader.MachineName
	}
	fmt.Fprintf(sb, "  PE%d %s, %d section(s), %d import librarie(s)\n",
		bits, machine, len(f.Sections), len(f.Imports))
	for _, s := range f.Sections {
		fmt.Fprintf(sb, "    %-10s rva 0x%08X  raw 0x%08X  size %-8d entropy %.2f\n",
			s.Name, s.VirtualAddress, s.PointerToRawData, s.SizeOfRawData, s.Entropy)
	}
	if f.Authenticode != nil {
		fmt.Fprintf(sb, "  signed by %q\n", f.Authenticode.SignerSubject)
	}
	if f.HasOverlay {
		fmt.Fprintf(sb, "  overlay: %d bytes at 0x%X\n", f.OverlaySize, f.OverlayOffset)
	}
}

func textELF(sb *strings.Builder, f *elfscan.File) {
	bits := 32
	if f.Is64Bit {
		bits = 64
	}
	fmt.Fprintf(sb, "  ELF%d %s %s, entry 0x%X\n", bits, f.MachineName, f.TypeName, f.EntryPoint)
	if f.Interp != "" {
		fmt.Fprintf(sb, "  interpreter %s\n", f.Interp)
	}
	if f.Dynamic != nil {
		for _, lib := range f.Dynamic.Needed {
			fmt.Fprintf(sb, "  needs %s\n", lib)
		}
	}
}

func textEBML(sb *strings.Builder, f *ebmlscan.File) {
	fmt.Fprintf(sb, "  doctype %s v%d, %d track(s), %d cluster(s)\n",
		f.DocType, f.DocTypeVersion, len(f.Tracks), f.Clusters)
	for _, t := range f.Tracks {
		fmt.Fprintf(sb, "    track %d %s %s\n", t.Number, t.TypeName, t.CodecID)
	}
}

func textRIFF(sb *strings.Builder, f *riffscan.File) {
	fmt.Fprintf(sb, "  form %s, %d chunk(s)\n", f.FormType, len(f.Chunks))
	if f.Wave != nil {
		fmt.Fprintf(sb, "  wave: %d Hz, %d channel(s), %d bits\n",
			f.Wave.SampleRate, f.Wave.Channels, f.Wave.BitsPerSample)
	}
}

func textFLAC(sb *strings.Builder, f *flacscan.File) {
	if f.StreamInfo != nil {
		fmt.Fprintf(sb, "  %d Hz, %d channel(s), %d bits, %d samples\n",
			f.StreamInfo.SampleRate, f.StreamInfo.Channels,
			f.StreamInfo.BitsPerSample, f.StreamInfo.TotalSamples)
	}
	fmt.Fprintf(sb, "  %d metadata block(s)\n", len(f.Blocks))
}

func textZIP(sb *strings.Builder, f *zipscan.File) {
	fmt.Fprintf(sb, "  %d entrie(s)\n", len(f.Entries))
	for _, e := range f.Entries {
		fmt.Fprintf(sb, "    %-40s %s %d -> %d\n", e.Name, e.MethodName, e.CompressedSize, e.UncompressedSize)
	}
}

func textASF(sb *strings.Builder, f *asfscan.File) {
	fmt.Fprintf(sb, "  %d object(s), %d stream(s)\n", len(f.Objects), len(f.Streams))
	if f.FileProps != nil {
		fmt.Fprintf(sb, "  duration %.1fs, max bitrate %d\n",
			f.FileProps.DurationSeconds, f.FileProps.MaxBitrate)
	}
}

// Dict renders one probe result as an ordered dictionary, so the JSON
// encoding has a deterministic key order.
func Dict(name string, res probe.Result) *ordereddict.Dict {
	d := ordereddict.NewDict().
		Set("file", name).
		Set("format", res.Format)
	switch f := res.Value.(type) {
	case *pescan.File:
		d.Set("pe", dictPE(f))
	case *elfscan.File:
		d.Set("elf", dictELF(f))
	case *ebmlscan.File:
		d.Set("ebml", dictEBML(f))
	case *riffscan.File:
		d.Set("riff", dictRIFF(f))
	case *flacscan.File:
		d.Set("flac", dictFLAC(f))
	case *zipscan.File:
		d.Set("zip", dictZIP(f))
	case *gifscan.File:
		d.Set("gif", ordereddict.NewDict().
			Set("version", f.Version).
			Set("width", f.Width).
			Set("height", f.Height).
			Set("images", len(f.Images)).
			Set("loop_count", f.LoopCount))
	case *pngscan.File:
		d.Set("png", dictPNG(f))
	case *asfscan.File:
		d.Set("asf", dictASF(f))
	case *mp4scan.File:
		d.Set("mp4", ordereddict.NewDict().
			Set("major_brand", f.MajorBrand).
			Set("compatible_brands", f.CompatibleBrands).
			Set("timescale", f.Timescale).
			Set("duration_seconds", f.DurationSeconds).
			Set("boxes", len(f.Boxes)))
	case *gzipscan.File:
		d.Set("gzip", ordereddict.NewDict().
			Set("name", f.Name).
			Set("comment", f.Comment).
			Set("os", f.OSName).
			Set("mtime", f.ModTime).
			Set("isize", f.ISize))
	}
	d.Set("issues", issueList(res.Issues))
	return d
}

// issueList keeps the JSON field an array even when empty.
func issueList(issues []string) []string {
	if issues == nil {
		return []string{}
	}
	return issues
}

func dictDigests(dg common.Digests) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("md5", dg.MD5).
		Set("sha1", dg.SHA1).
		Set("sha256", dg.SHA256).
		Set("ssdeep", dg.SSDEEP)
}

func dictPE(f *pescan.File) *ordereddict.Dict {
	d := ordereddict.NewDict().Set("is_64bit", f.Is64Bit)
	if f.FileHeader != nil {
		d.Set("machine", f.FileHeader.MachineName).
			Set("timestamp", f.FileHeader.TimeDateStamp)
	}
	if f.OptionalHeader != nil {
		d.Set("entry_point", f.OptionalHeader.AddressOfEntryPoint).
			Set("image_base", f.OptionalHeader.ImageBase).
			Set("subsystem", f.OptionalHeader.Subsystem)
	}
	sections := make([]*ordereddict.Dict, 0, len(f.Sections))
	for _, s := range f.Sections {
		sections = append(sections, ordereddict.NewDict().
			Set("name", s.Name).
			Set("rva", s.VirtualAddress).
			Set("vsize", s.VirtualSize).
			Set("raw_offset", s.PointerToRawData).
			Set("raw_size", s.SizeOfRawData).
			Set("entropy", s.Entropy).
			Set("md5", s.MD5Hash))
	}
	d.Set("sections", sections)

	imports := make([]*ordereddict.Dict, 0, len(f.Imports))
	for _, imp := range f.Imports {
		imports = append(imports, ordereddict.NewDict().
			Set("library", imp.Library).
			Set("functions", imp.Functions))
	}
	d.Set("imports", imports)
	if f.Exports != nil {
		d.Set("export_dll", f.Exports.DLLName).
			Set("export_count", len(f.Exports.Entries))
	}
	if f.Debug != nil {
		d.Set("pdb_path", f.Debug.PDBPath).Set("pdb_guid", f.Debug.GUID)
	}
	if f.Authenticode != nil {
		d.Set("signer", f.Authenticode.SignerSubject).
			Set("certificates", f.Authenticode.CertificateCount)
	}
	d.Set("has_overlay", f.HasOverlay)
	d.Set("digests", dictDigests(f.Digests))
	return d
}

func dictELF(f *elfscan.File) *ordereddict.Dict {
	d := ordereddict.NewDict().
		Set("is_64bit", f.Is64Bit).
		Set("big_endian", f.BigEndian).
		Set("type", f.TypeName).
		Set("machine", f.MachineName).
		Set("entry_point", f.EntryPoint).
		Set("interp", f.Interp)
	segments := make([]*ordereddict.Dict, 0, len(f.Segments))
	for _, s := range f.Segments {
		segments = append(segments, ordereddict.NewDict().
			Set("type", s.TypeName).
			Set("offset", s.Offset).
			Set("vaddr", s.Vaddr).
			Set("file_size", s.FileSize))
	}
	d.Set("segments", segments)
	if f.Dynamic != nil {
		d.Set("needed", f.Dynamic.Needed).
			Set("soname", f.Dynamic.SOName).
			Set("inferred_symbols", f.Dynamic.InferredSymbolCount)
	}
	d.Set("digests", dictDigests(f.Digests))
	return d
}

func dictEBML(f *ebmlscan.File) *ordereddict.Dict {
	d := ordereddict.NewDict().
		Set("doctype", f.DocType).
		Set("doctype_version", f.DocTypeVersion).
		Set("clusters", f.Clusters).
		Set("cue_points", f.CuePoints)
	if f.Info != nil {
		d.Set("title", f.Info.Title).
			Set("muxing_app", f.Info.MuxingApp).
			Set("duration", f.Info.Duration)
	}
	tracks := make([]*ordereddict.Dict, 0, len(f.Tracks))
	for _, t := range f.Tracks {
		td := ordereddict.NewDict().
			Set("number", t.Number).
			Set("type", t.TypeName).
			Set("codec", t.CodecID)
		if t.Video != nil {
			td.Set("width", t.Video.PixelWidth).Set("height", t.Video.PixelHeight)
		}
		if t.Audio != nil {
			td.Set("sample_rate", t.Audio.SamplingFrequency).Set("channels", t.Audio.Channels)
		}
		tracks = append(tracks, td)
	}
	return d.Set("tracks", tracks)
}

func dictRIFF(f *riffscan.File) *ordereddict.Dict {
	d := ordereddict.NewDict().
		Set("form", f.FormType).
		Set("chunks", len(f.Chunks))
	if f.Wave != nil {
		d.Set("sample_rate", f.Wave.SampleRate).
			Set("channels", f.Wave.Channels).
			Set("bits_per_sample", f.Wave.BitsPerSample)
	}
	if f.AVI != nil {
		d.Set("width", f.AVI.Width).
			Set("height", f.AVI.Height).
			Set("total_frames", f.AVI.TotalFrames)
	}
	if f.WebP != nil {
		d.Set("canvas_width", f.WebP.CanvasWidth).
			Set("canvas_height", f.WebP.CanvasHeight)
	}
	if len(f.Tags) > 0 {
		d.Set("tags", f.Tags)
	}
	return d
}

func dictFLAC(f *flacscan.File) *ordereddict.Dict {
	d := ordereddict.NewDict().Set("blocks", len(f.Blocks))
	if f.StreamInfo != nil {
		d.Set("sample_rate", f.StreamInfo.SampleRate).
			Set("channels", f.StreamInfo.Channels).
			Set("bits_per_sample", f.StreamInfo.BitsPerSample).
			Set("total_samples", f.StreamInfo.TotalSamples).
			Set("md5", f.StreamInfo.MD5)
	}
	d.Set("vendor", f.Vendor)
	if len(f.Comments) > 0 {
		d.Set("comments", f.Comments)
	}
	return d
}

func dictZIP(f *zipscan.File) *ordereddict.Dict {
	entries := make([]*ordereddict.Dict, 0, len(f.Entries))
	for _, e := range f.Entries {
		entries = append(entries, ordereddict.NewDict().
			Set("name", e.Name).
			Set("method", e.MethodName).
			Set("compressed", e.CompressedSize).
			Set("uncompressed", e.UncompressedSize).
			Set("crc32", e.CRC32))
	}
	return ordereddict.NewDict().
		Set("entries", entries).
		Set("comment", f.Comment).
		Set("prepended_bytes", f.PrependedBytes).
		Set("zip64", f.ZIP64)
}

func dictPNG(f *pngscan.File) *ordereddict.Dict {
	d := ordereddict.NewDict()
	if f.Header != nil {
		d.Set("width", f.Header.Width).
			Set("height", f.Header.Height).
			Set("bit_depth", f.Header.BitDepth).
			Set("color_type", f.Header.ColorType)
	}
	d.Set("chunks", len(f.Chunks)).Set("has_iend", f.HasIEND)
	if len(f.Texts) > 0 {
		d.Set("texts", f.Texts)
	}
	return d
}

func dictASF(f *asfscan.File) *ordereddict.Dict {
	d := ordereddict.NewDict().Set("objects", len(f.Objects))
	if f.FileProps != nil {
		d.Set("duration_seconds", f.FileProps.DurationSeconds).
			Set("packet_count", f.FileProps.PacketCount).
			Set("max_bitrate", f.FileProps.MaxBitrate)
	}
	streams := make([]*ordereddict.Dict, 0, len(f.Streams))
	for _, s := range f.Streams {
		streams = append(streams, ordereddict.NewDict().
			Set("number", s.StreamNumber).
			Set("type", s.StreamType))
	}
	return d.Set("streams", streams)
}
