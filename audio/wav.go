package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// pcm holds decoded linear PCM audio as 16-bit samples, interleaved when
// Channels > 1.
type pcm struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// decodeWAV parses a RIFF/WAVE container with 16-bit PCM data. Other sample
// widths and compressed codecs go through the ffmpeg path instead.
func decodeWAV(data []byte) (*pcm, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("wav: file too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("wav: not a RIFF/WAVE container")
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bitsPer    int
		samples    []int16
		haveFmt    bool
	)

	// Walk the chunk list. fmt must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short")
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPer = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			if format != 1 || bitsPer != 16 {
				return nil, fmt.Errorf("wav: unsupported encoding (format=%d bits=%d)", format, bitsPer)
			}
			n := size / 2
			samples = make([]int16, n)
			for i := 0; i < n; i++ {
				samples[i] = int16(binary.LittleEndian.Uint16(data[body+2*i : body+2*i+2]))
			}
		}

		// chunks are word aligned
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if samples == nil {
		return nil, fmt.Errorf("wav: no data chunk")
	}
	if channels < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid fmt (channels=%d rate=%d)", channels, sampleRate)
	}
	return &pcm{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// encodeWAV writes mono 16-bit PCM into a canonical RIFF/WAVE container.
func encodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// downmix averages interleaved channels into mono.
func downmix(p *pcm) []int16 {
	if p.Channels == 1 {
		return p.Samples
	}
	frames := len(p.Samples) / p.Channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < p.Channels; c++ {
			sum += int(p.Samples[i*p.Channels+c])
		}
		out[i] = int16(sum / p.Channels)
	}
	return out
}

// resample converts mono samples to the target rate by linear interpolation.
// Deterministic: identical input always yields identical output.
func resample(in []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return out
}
