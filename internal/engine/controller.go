package engine

// Controller is an attached physical controller, provided by a driver.
type Controller interface {
	ID() string
	LEDLevel() int
	SetLEDLevel(level int) error
	TurnOff() error
}

// ClampLED limits an indicator level to 0..100.
func ClampLED(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
