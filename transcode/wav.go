package transcode

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/RyanBlaney/sonido-sync/audio"
)

// ErrInvalidWAV reports a header this package cannot read
var ErrInvalidWAV = errors.New("invalid WAV data")

const (
	wavHeaderSize    = 44
	wavBitsPerSample = 16
	pcmFormat        = 1
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM data
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteWAV encodes wf as 16-bit PCM. Samples outside [-1, 1] are clipped.
func WriteWAV(w io.Writer, wf *audio.Waveform) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	dataSize := uint32(len(wf.Samples) * wavBitsPerSample / 8)
	blockAlign := uint16(wf.Channels * wavBitsPerSample / 8)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   pcmFormat,
		NumChannels:   uint16(wf.Channels),
		SampleRate:    uint32(wf.SampleRate),
		ByteRate:      uint32(wf.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: wavBitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}

	pcm := make([]int16, len(wf.Samples))
	for i, s := range wf.Samples {
		pcm[i] = floatToPCM16(s)
	}
	if err := binary.Write(bw, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return bw.Flush()
}

// WriteWAVFile writes wf to path, replacing any existing file
func WriteWAVFile(path string, wf *audio.Waveform) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return WriteWAV(f, wf)
}

// ReadWAV decodes a canonical 16-bit PCM WAV stream
func ReadWAV(r io.Reader) (*audio.Waveform, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < wavHeaderSize {
		return nil, fmt.Errorf("%w: file too small", ErrInvalidWAV)
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data[:wavHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if string(header.ChunkID[:]) != "RIFF" ||
		string(header.Format[:]) != "WAVE" ||
		header.AudioFormat != pcmFormat {
		return nil, fmt.Errorf("%w: not a PCM RIFF/WAVE header", ErrInvalidWAV)
	}
	if header.BitsPerSample != wavBitsPerSample {
		return nil, fmt.Errorf("%w: unsupported bits-per-sample %d (expect 16)", ErrInvalidWAV, header.BitsPerSample)
	}

	payload := data[wavHeaderSize:]
	if size := int(header.Subchunk2Size); size < len(payload) {
		payload = payload[:size]
	}

	pcm := make([]int16, len(payload)/2)
	if err := binary.Read(bytes.NewReader(payload[:len(pcm)*2]), binary.LittleEndian, pcm); err != nil {
		return nil, err
	}

	const scale = 1.0 / 32768.0
	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s) * scale
	}

	return audio.NewWaveform(samples, int(header.SampleRate), int(header.NumChannels))
}

// ReadWAVFile reads a 16-bit PCM WAV file
func ReadWAVFile(path string) (*audio.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadWAV(f)
}

func floatToPCM16(s float64) int16 {
	s = math.Max(-1, math.Min(1, s))
	return int16(math.Round(s * math.MaxInt16))
}
