package challenge

import (
	"fmt"
	"strconv"

	"github.com/jmcleod/opweb/internal/util"
)

// NewArithmetic returns a simple "a + b = ?" question with a and b in 1..9
// and its expected answer.
func NewArithmetic() (question, answer string, err error) {
	a, err := util.RandomIntn(9)
	if err != nil {
		return "", "", err
	}
	b, err := util.RandomIntn(9)
	if err != nil {
		return "", "", err
	}
	a, b = a+1, b+1
	return fmt.Sprintf("%d + %d = ?", a, b), strconv.Itoa(a + b), nil
}
