package core

import "time"

const avgCount = 30

// FrameMetrics keeps a moving average of frame times and the frames counted
// during the last elapsed second.
type FrameMetrics struct {
	frameAvgCounter    int
	msTimes            [avgCount]float64
	msAvg              float64
	frames             int
	accumulatedFrameMS float64
	fps                float64
	frameStart         time.Time
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// BeginFrame marks the start of a frame.
func (m *FrameMetrics) BeginFrame() {
	m.frameStart = time.Now()
}

// EndFrame accounts the time spent since BeginFrame.
func (m *FrameMetrics) EndFrame() {
	m.Update(time.Since(m.frameStart))
}

func (m *FrameMetrics) Update(frameElapsed time.Duration) {
	frameMS := float64(frameElapsed.Microseconds()) / 1000.0
	m.msTimes[m.frameAvgCounter] = frameMS
	if m.frameAvgCounter == avgCount-1 {
		m.msAvg = 0
		for i := 0; i < avgCount; i++ {
			m.msAvg += m.msTimes[i]
		}
		m.msAvg /= float64(avgCount)
	}
	m.frameAvgCounter = (m.frameAvgCounter + 1) % avgCount

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last window.
func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}
