package probe

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ContainerInfo is what the MP4 sample tables say about the first video track,
// independent of whether OpenCV can decode it.
type ContainerInfo struct {
	Codec      string
	Width      int
	Height     int
	Samples    int
	Timescale  uint32
	Duration   time.Duration
	Fragmented bool
}

func MP4File(path string) (ContainerInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return MP4(f)
}

func MP4(r io.ReadSeeker) (ContainerInfo, error) {
	file, err := mp4.DecodeFile(r)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("decode mp4: %w", err)
	}

	if file.IsFragmented() {
		return fragmentedInfo(file)
	}
	return progressiveInfo(file)
}

func progressiveInfo(file *mp4.File) (ContainerInfo, error) {
	if file.Moov == nil {
		return ContainerInfo{}, fmt.Errorf("no moov box found")
	}
	trak := videoTrack(file.Moov)
	if trak == nil {
		return ContainerInfo{}, fmt.Errorf("no video track found")
	}

	info := trackInfo(trak)
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil {
		return ContainerInfo{}, fmt.Errorf("no stsz box found")
	}
	info.Samples = int(stbl.Stsz.SampleNumber)

	if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
		info.Duration = scaled(mdhd.Duration, mdhd.Timescale)
	}
	return info, nil
}

func fragmentedInfo(file *mp4.File) (ContainerInfo, error) {
	if file.Init == nil || file.Init.Moov == nil {
		return ContainerInfo{}, fmt.Errorf("no init segment found")
	}
	trak := videoTrack(file.Init.Moov)
	if trak == nil {
		return ContainerInfo{}, fmt.Errorf("no video track found")
	}

	if trak.Tkhd == nil {
		return ContainerInfo{}, fmt.Errorf("video track has no tkhd box")
	}

	info := trackInfo(trak)
	info.Fragmented = true
	trackID := trak.Tkhd.TrackID

	var trex *mp4.TrexBox
	if mvex := file.Init.Moov.Mvex; mvex != nil {
		for _, t := range mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	var total uint64
	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return ContainerInfo{}, fmt.Errorf("get samples: %w", err)
			}
			for _, s := range samples {
				info.Samples++
				total += uint64(s.Dur)
			}
		}
	}

	if info.Timescale > 0 {
		info.Duration = scaled(total, info.Timescale)
	}
	return info, nil
}

func videoTrack(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		return trak
	}
	return nil
}

func trackInfo(trak *mp4.TrakBox) ContainerInfo {
	info := ContainerInfo{Codec: "unknown"}
	if trak.Tkhd != nil {
		info.Width = int(trak.Tkhd.Width >> 16)
		info.Height = int(trak.Tkhd.Height >> 16)
	}
	if trak.Mdia.Mdhd != nil {
		info.Timescale = trak.Mdia.Mdhd.Timescale
	}
	if stsd := trak.Mdia.Minf.Stbl.Stsd; stsd != nil {
		info.Codec = sampleEntryCodec(stsd)
	}
	return info
}

func sampleEntryCodec(stsd *mp4.StsdBox) string {
	for _, child := range stsd.Children {
		switch child.Type() {
		case "avc1", "avc3":
			return "h264"
		case "hvc1", "hev1":
			return "hevc"
		case "av01":
			return "av1"
		case "mp4v":
			return "mpeg4"
		}
	}
	return "unknown"
}

func scaled(units uint64, timescale uint32) time.Duration {
	return time.Duration(float64(units) * float64(time.Second) / float64(timescale))
}
