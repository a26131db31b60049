package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

// MaxBillSequence is the last sequence an automatic number can carry.
const MaxBillSequence int64 = math.MaxInt64

// ParseBillSequence returns the numeric suffix of number after prefix, or 0 when number
// does not carry the prefix or the suffix is not a plain run of digits.
func ParseBillSequence(prefix string, number string) int64 {
	number = strings.TrimSpace(number)
	if !strings.HasPrefix(number, prefix) {
		return 0
	}
	suffix := number[len(prefix):]
	if suffix == "" || strings.TrimLeft(suffix, "0123456789") != "" {
		return 0
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// NextBillNumber derives the identifier after lastIssued. Absent or unparsable input
// starts numbering at 1.
func NextBillNumber(prefix string, lastIssued *string) (string, int64, error) {
	var n int64
	if lastIssued != nil {
		n = ParseBillSequence(prefix, *lastIssued)
	}
	if n >= MaxBillSequence {
		return "", 0, &utils.IntegrityError{Op: "NextBillNumber", Err: fmt.Errorf("bill sequence for prefix %q is exhausted", prefix)}
	}
	next := n + 1
	return FormatBillNumber(prefix, next), next, nil
}

func FormatBillNumber(prefix string, seq int64) string {
	return prefix + strconv.FormatInt(seq, 10)
}
