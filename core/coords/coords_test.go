package coords

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Match
		ok   bool
	}{
		{
			name: "comma and ignored hop",
			text: "observed at 37.5, -122.25 a1",
			want: Match{Lat: 37.5, Lon: -122.25, Ignored: "a1"},
			ok:   true,
		},
		{
			name: "space separated",
			text: "47.6062 -122.3321",
			want: Match{Lat: 47.6062, Lon: -122.3321},
			ok:   true,
		},
		{
			name: "explicit plus sign and integers",
			text: "+45 , 7",
			want: Match{Lat: 45, Lon: 7},
			ok:   true,
		},
		{
			name: "trailing text after coordinates",
			text: "ping 12.5, 99.25 from the car",
			want: Match{Lat: 12.5, Lon: 99.25},
			ok:   true,
		},
		{
			name: "hex token must stand alone",
			text: "37.5, -122.25 a1b2",
			want: Match{Lat: 37.5, Lon: -122.25},
			ok:   true,
		},
		{
			name: "three hex chars is not a hop id",
			text: "37.5 -122.25 abc",
			want: Match{Lat: 37.5, Lon: -122.25},
			ok:   true,
		},
		{
			name: "uppercase hop id lowered",
			text: "37.5 -122.25 B2",
			want: Match{Lat: 37.5, Lon: -122.25, Ignored: "b2"},
			ok:   true,
		},
		{
			name: "first match wins",
			text: "1.5 2.5 then 3.5 4.5",
			want: Match{Lat: 1.5, Lon: 2.5},
			ok:   true,
		},
		{
			name: "no-break space separator",
			text: "37.5\u00a0-122.25\u2009c3",
			want: Match{Lat: 37.5, Lon: -122.25, Ignored: "c3"},
			ok:   true,
		},
		{
			name: "tab and vertical tab",
			text: "37.5,\t\v-122.25",
			want: Match{Lat: 37.5, Lon: -122.25},
			ok:   true,
		},
		{
			name: "no digits",
			text: "hello mesh",
			ok:   false,
		},
		{
			name: "comma without whitespace",
			text: "37.5,-122.25",
			ok:   false,
		},
		{
			name: "single number",
			text: "battery 87",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			if ok != tt.ok {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Extract(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}
