//go:build !linux

package bridge

func setThreadName(string) error {
	return nil
}
