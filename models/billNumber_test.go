package models

import (
	"errors"
	"strconv"
	"testing"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

func TestNextBillNumber(t *testing.T) {
	str := func(s string) *string { return &s }
	cases := []struct {
		name    string
		last    *string
		want    string
		wantSeq int64
	}{
		{"first bill", nil, "ST1", 1},
		{"increments suffix", str("ST41"), "ST42", 42},
		{"unparsable suffix restarts", str("ST-abc"), "ST1", 1},
		{"foreign prefix restarts", str("INV9"), "ST1", 1},
		{"leading zeros", str("ST007"), "ST8", 8},
		{"signed suffix restarts", str("ST+5"), "ST1", 1},
		{"negative suffix restarts", str("ST-5"), "ST1", 1},
		{"one before the limit", str("ST" + strconv.FormatInt(MaxBillSequence-1, 10)), "ST" + strconv.FormatInt(MaxBillSequence, 10), MaxBillSequence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, seq, err := NextBillNumber("ST", tc.last)
			if err != nil {
				t.Fatalf("NextBillNumber: %v", err)
			}
			if got != tc.want || seq != tc.wantSeq {
				t.Fatalf("NextBillNumber = (%s, %d), want (%s, %d)", got, seq, tc.want, tc.wantSeq)
			}
		})
	}
}

func TestNextBillNumberExhausted(t *testing.T) {
	last := "ST" + strconv.FormatInt(MaxBillSequence, 10)
	_, seq, err := NextBillNumber("ST", &last)
	if !errors.Is(err, utils.ErrIntegrityFailure) {
		t.Fatalf("expected IntegrityFailure, got %v", err)
	}
	if seq != 0 {
		t.Fatalf("seq = %d", seq)
	}
}

func TestParseBillSequence(t *testing.T) {
	cases := []struct {
		number string
		want   int64
	}{
		{" ST12 ", 12},
		{"MANUAL-1", 0},
		{"ST", 0},
		{"ST+5", 0},
		{"ST-5", 0},
		{"ST1x", 0},
		{"ST99999999999999999999", 0},
	}
	for _, tc := range cases {
		if n := ParseBillSequence("ST", tc.number); n != tc.want {
			t.Fatalf("ParseBillSequence(%q) = %d, want %d", tc.number, n, tc.want)
		}
	}
}
