package networktime

import "fmt"

func (networkTime NetworkTime) AddSeconds(seconds float64) (NetworkTime, error) {
	return New(networkTime.rate(), networkTime.timeSec+seconds)
}

func (networkTime NetworkTime) SubSeconds(seconds float64) (NetworkTime, error) {
	return New(networkTime.rate(), networkTime.timeSec-seconds)
}

// Returns a value whose time is the sum of both times. Both values must have
// the same tick rate; use ConvertTo first to combine timelines of different
// rates.
func (networkTime NetworkTime) Add(other NetworkTime) (NetworkTime, error) {
	if err := networkTime.checkSameRate(other); err != nil {
		return NetworkTime{}, err
	}
	return New(networkTime.rate(), networkTime.timeSec+other.timeSec)
}

// Returns a value whose time is the difference of both times. Both values
// must have the same tick rate.
func (networkTime NetworkTime) Sub(other NetworkTime) (NetworkTime, error) {
	if err := networkTime.checkSameRate(other); err != nil {
		return NetworkTime{}, err
	}
	return New(networkTime.rate(), networkTime.timeSec-other.timeSec)
}

// Returns the same instant quantized at a different tick rate.
func (networkTime NetworkTime) ConvertTo(tickRate int) (NetworkTime, error) {
	return New(tickRate, networkTime.timeSec)
}

func (networkTime NetworkTime) checkSameRate(other NetworkTime) error {
	if networkTime.rate() != other.rate() {
		return fmt.Errorf("combining network times: left=%d right=%d %w", networkTime.rate(), other.rate(), ErrIncompatibleRate)
	}
	return nil
}
