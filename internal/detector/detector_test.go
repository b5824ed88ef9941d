package detector

import (
	"errors"
	"image"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Range.Lower != (HSV{H: 35, S: 50, V: 50}) {
		t.Errorf("lower bound = %+v, want {35 50 50}", cfg.Range.Lower)
	}
	if cfg.Range.Upper != (HSV{H: 85, S: 255, V: 255}) {
		t.Errorf("upper bound = %+v, want {85 255 255}", cfg.Range.Upper)
	}
	if cfg.MinArea != 1000 {
		t.Errorf("MinArea = %v, want 1000", cfg.MinArea)
	}
	if cfg.KernelSize != 5 {
		t.Errorf("KernelSize = %d, want 5", cfg.KernelSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{
			name:    "default",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "full hue range",
			modify:  func(c *Config) { c.Range.Lower.H, c.Range.Upper.H = 0, 180 },
			wantErr: false,
		},
		{
			name:    "hue above 180",
			modify:  func(c *Config) { c.Range.Upper.H = 181 },
			wantErr: true,
		},
		{
			name:    "negative saturation",
			modify:  func(c *Config) { c.Range.Lower.S = -1 },
			wantErr: true,
		},
		{
			name:    "value above 255",
			modify:  func(c *Config) { c.Range.Upper.V = 256 },
			wantErr: true,
		},
		{
			name:    "lower hue above upper hue",
			modify:  func(c *Config) { c.Range.Lower.H, c.Range.Upper.H = 90, 80 },
			wantErr: true,
		},
		{
			name:    "equal bounds",
			modify:  func(c *Config) { c.Range.Lower.S, c.Range.Upper.S = 100, 100 },
			wantErr: false,
		},
		{
			name:    "negative min area",
			modify:  func(c *Config) { c.MinArea = -1 },
			wantErr: true,
		},
		{
			name:    "zero min area",
			modify:  func(c *Config) { c.MinArea = 0 },
			wantErr: false,
		},
		{
			name:    "zero kernel",
			modify:  func(c *Config) { c.KernelSize = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHSVRange_Contains(t *testing.T) {
	tests := []struct {
		name  string
		color HSV
		want  bool
	}{
		{"midpoint", HSV{H: 60, S: 152, V: 152}, true},
		{"lower corner", HSV{H: 35, S: 50, V: 50}, true},
		{"upper corner", HSV{H: 85, S: 255, V: 255}, true},
		{"hue too low", HSV{H: 34, S: 152, V: 152}, false},
		{"hue too high", HSV{H: 86, S: 152, V: 152}, false},
		{"desaturated", HSV{H: 60, S: 49, V: 152}, false},
		{"too dark", HSV{H: 60, S: 152, V: 49}, false},
		{"black", HSV{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GreenFelt.Contains(tt.color); got != tt.want {
				t.Errorf("Contains(%+v) = %v, want %v", tt.color, got, tt.want)
			}
		})
	}
}

func TestHSVRange_Midpoint(t *testing.T) {
	got := GreenFelt.Midpoint()
	want := HSV{H: 60, S: 152, V: 152}
	if got != want {
		t.Errorf("Midpoint() = %+v, want %+v", got, want)
	}
}

func TestNewTableDetector_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KernelSize = 0

	d, err := NewTableDetector(cfg)
	if err == nil {
		d.Close()
		t.Fatal("expected error for invalid config")
	}
}

func TestValidateFrame_Nil(t *testing.T) {
	err := validateFrame(nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("validateFrame(nil) = %v, want ErrInvalidInput", err)
	}
}

func TestResult_NotFound(t *testing.T) {
	var r *Result
	if r.Found() {
		t.Error("nil result should not be found")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() on nil result = %v", err)
	}

	empty := &Result{}
	if empty.Found() {
		t.Error("result without contour should not be found")
	}
	if corners := empty.Corners(); corners != nil {
		t.Errorf("Corners() = %v, want nil", corners)
	}
	if box := empty.BoundingBox(); box != (image.Rectangle{}) {
		t.Errorf("BoundingBox() = %v, want empty", box)
	}
}

func TestRectangleContour(t *testing.T) {
	pts := RectangleContour(image.Rect(10, 20, 30, 40))
	if len(pts) != 4 {
		t.Fatalf("len = %d, want 4", len(pts))
	}
	if pts[0] != image.Pt(10, 20) || pts[2] != image.Pt(30, 40) {
		t.Errorf("unexpected corners %v", pts)
	}
}
