package transcribe

import (
	"encoding/binary"
	"math"
)

const (
	wavHeaderSize = 44
	sampleRate    = 16000

	// calibrationSamples is the fixed leading window used to estimate the
	// ambient noise floor, 100ms at 16 kHz mono.
	calibrationSamples = sampleRate / 10

	// minSpeechRMS is the absolute floor below which a clip is treated as
	// silence regardless of calibration.
	minSpeechRMS = 120.0

	// noiseMargin scales the calibrated floor into a speech threshold.
	noiseMargin = 2.0
)

// pcmSamples decodes 16-bit little-endian mono samples from a WAV payload.
func pcmSamples(wav []byte) []int16 {
	if len(wav) <= wavHeaderSize {
		return nil
	}
	data := wav[wavHeaderSize:]
	samples := make([]int16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		samples = append(samples, int16(binary.LittleEndian.Uint16(data[i:i+2])))
	}
	return samples
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// hasSpeech calibrates against the leading window and reports whether the
// remainder of the clip rises meaningfully above the ambient floor. Clips
// too short to calibrate are passed through to the recognizer.
func hasSpeech(wav []byte) bool {
	samples := pcmSamples(wav)
	if len(samples) <= calibrationSamples {
		return true
	}

	floor := rms(samples[:calibrationSamples])
	threshold := math.Max(floor*noiseMargin, minSpeechRMS)
	return rms(samples[calibrationSamples:]) >= threshold
}
