package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2025-08-12", want: "2025-08-12"},
		{in: "2025-08-12T23:10:00Z", want: "2025-08-12"},
		{in: "2025-08-12 10:00:00", want: "2025-08-12"},
		{in: " 2024-02-29 ", want: "2024-02-29"},
		{in: "2023-02-29", wantErr: true},
		{in: "12/08/2025", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDate(%q): expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseDate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDate_JSON(t *testing.T) {
	d := NewDate(2025, time.March, 7)

	data, err := json.Marshal(struct {
		Date Date `json:"date"`
	}{Date: d})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"date":"2025-03-07"}` {
		t.Fatalf("unexpected json: %s", data)
	}

	var decoded struct {
		Date Date `json:"date"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Date.Equal(d) {
		t.Fatalf("expected %s, got %s", d, decoded.Date)
	}

	if err := json.Unmarshal([]byte(`{"date":12}`), &decoded); err == nil {
		t.Fatal("expected error for numeric date")
	}
}

func TestDate_Scan(t *testing.T) {
	var d Date

	if err := d.Scan(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("scan time: %v", err)
	}
	if d.String() != "2025-01-02" {
		t.Fatalf("unexpected date after time scan: %s", d)
	}

	if err := d.Scan([]byte("2025-05-06")); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if d.String() != "2025-05-06" {
		t.Fatalf("unexpected date after bytes scan: %s", d)
	}

	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Fatalf("expected zero date after nil scan, got %s (%v)", d, err)
	}

	if err := d.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}

	v, err := NewDate(2025, 12, 31).Value()
	if err != nil || v != "2025-12-31" {
		t.Fatalf("unexpected value %v (%v)", v, err)
	}
}
