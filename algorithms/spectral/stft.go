package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-sync/logging"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft    *FFT
	logger logging.Logger
}

// STFTResult holds the magnitude spectrogram produced by Compute
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // Analysis window size
	FFTSize        int         `json:"fft_size"`        // FFT size (window zero-padded)
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
		logger: logging.WithFields(logging.Fields{
			"component": "stft",
		}),
	}
}

// Compute computes a magnitude spectrogram over exactly numFrames frames.
// Frame k starts at k*hopSize; samples past the end of the signal read as
// zero, so the last frames may be partially padded. Each windowed frame is
// zero-padded to fftSize before the transform.
func (s *STFT) Compute(signal []float64, windowSize, hopSize, fftSize, numFrames, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	if fftSize < windowSize {
		return nil, fmt.Errorf("fft size (%d) smaller than window size (%d)", fftSize, windowSize)
	}

	if numFrames <= 0 {
		return nil, fmt.Errorf("frame count must be positive")
	}

	freqBins := fftSize/2 + 1

	magnitude := make([][]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)

	jobs := make(chan int, numFrames)
	errs := make(chan error, numWorkers)

	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse buffers for this worker
			frameBuffer := make([]float64, windowSize)
			fftBuffer := make([]float64, fftSize)

			for frameIdx := range jobs {
				start := frameIdx * hopSize

				clear(frameBuffer)
				if start < len(signal) {
					copy(frameBuffer, signal[start:min(start+windowSize, len(signal))])
				}

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errs <- fmt.Errorf("frame %d: %w", frameIdx, err)
						return
					}
				}

				clear(fftBuffer)
				copy(fftBuffer, frameBuffer)

				fftResult := s.fft.Compute(fftBuffer)

				row := magnitude[frameIdx]
				for i := range freqBins {
					row[i] = cmplx.Abs(fftResult[i])
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)

	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, fmt.Errorf("failed to window frame: %w", err)
	}

	s.logger.Debug("STFT computed", logging.Fields{
		"frames":    numFrames,
		"fft_size":  fftSize,
		"hop_size":  hopSize,
		"workers":   numWorkers,
		"freq_bins": freqBins,
	})

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		FFTSize:        fftSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(fftSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// getOptimalWorkerCount determines the optimal number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	// For medium workloads, use most CPUs
	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
