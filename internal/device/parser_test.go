package device

import (
	"testing"
)

func TestParseLegacyPower(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Delta
	}{
		{
			name: "all four sockets",
			body: "p61=1 p62=0 p63=1 p64=0",
			want: Delta{
				1: {Power: PowerOn},
				2: {Power: PowerOff},
				3: {Power: PowerOn},
				4: {Power: PowerOff},
			},
		},
		{
			name: "html wrapper and extra whitespace",
			body: "<html><body>p61 = 1,p62=0\r\n</body></html>",
			want: Delta{
				1: {Power: PowerOn},
				2: {Power: PowerOff},
			},
		},
		{
			name: "socket digit outside 1-4 ignored",
			body: "p60=1 p65=1 p69=0 p63=1",
			want: Delta{
				3: {Power: PowerOn},
			},
		},
		{
			name: "unknown values omitted",
			body: "p61=2 p62=x p63=10 p64=0",
			want: Delta{
				4: {Power: PowerOff},
			},
		},
		{
			name: "name fields are not power fields",
			body: "p61_name=Rack1 p62=1",
			want: Delta{
				2: {Power: PowerOn},
			},
		},
		{
			name: "fields without separators",
			body: "p61=1p62=0p63=1p64=0",
			want: Delta{
				1: {Power: PowerOn},
				2: {Power: PowerOff},
				3: {Power: PowerOn},
				4: {Power: PowerOff},
			},
		},
		{
			name: "underscore between fields",
			body: "p61=1_p62=0",
			want: Delta{
				1: {Power: PowerOn},
				2: {Power: PowerOff},
			},
		},
		{
			name: "empty body",
			body: "",
			want: Delta{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLegacyPower(tt.body)
			assertDelta(t, got, tt.want)
		})
	}
}

func TestParseLegacyPower_AllDigitsAndValues(t *testing.T) {
	for d := 0; d <= 9; d++ {
		for _, v := range []string{"0", "1"} {
			body := "p6" + string(rune('0'+d)) + "=" + v
			got := ParseLegacyPower(body)

			id := SocketID(d)
			if !id.Valid() {
				if len(got) != 0 {
					t.Errorf("ParseLegacyPower(%q) = %v, want empty", body, got)
				}
				continue
			}

			want := PowerOff
			if v == "1" {
				want = PowerOn
			}
			if got[id].Power != want {
				t.Errorf("ParseLegacyPower(%q)[%d] = %v, want %v", body, d, got[id].Power, want)
			}
		}
	}
}

func TestParseLegacyNames(t *testing.T) {
	body := "p61_name=Rack1 p62_name=Switch p63_name = NAS2\np64_name=\np65_name=Ghost"
	got := ParseLegacyNames(body)

	want := Delta{
		1: {Name: "Rack1"},
		2: {Name: "Switch"},
		3: {Name: "NAS2"},
	}
	assertDelta(t, got, want)
}

func TestParseJSONPower(t *testing.T) {
	body := []byte(`{"result":{"RL":[{"id":1,"name":"Rack1","state":1},{"id":2,"name":"Rack2","state":0}]}}`)

	got, err := ParseJSONPower(body)
	if err != nil {
		t.Fatalf("ParseJSONPower() error = %v", err)
	}

	want := Delta{
		1: {Name: "Rack1", Power: PowerOn},
		2: {Name: "Rack2", Power: PowerOff},
	}
	assertDelta(t, got, want)
}

func TestParseJSONPower_Tolerant(t *testing.T) {
	body := []byte(`<html>{"result":{"RL":[{"id":1,"name":"A","state":"1"},{"id":7,"name":"X","state":1},{"id":3,"name":"","state":5}]}}</html>`)

	got, err := ParseJSONPower(body)
	if err != nil {
		t.Fatalf("ParseJSONPower() error = %v", err)
	}

	want := Delta{
		1: {Name: "A", Power: PowerOn},
	}
	assertDelta(t, got, want)
}

func TestParseJSONPower_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing result", `{"status":"ok"}`},
		{"missing RL", `{"result":{}}`},
		{"not json", `p61=1`},
		{"truncated", `{"result":{"RL":[`},
		{"RL wrong type", `{"result":{"RL":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONPower([]byte(tt.body))
			if err == nil {
				t.Fatalf("ParseJSONPower(%q) = %v, want error", tt.body, got)
			}
			if !IsProtocol(err) {
				t.Errorf("ParseJSONPower(%q) error = %v, want protocol error", tt.body, err)
			}
			if got != nil {
				t.Errorf("ParseJSONPower(%q) returned partial result %v", tt.body, got)
			}
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"trailing html", `{"a":"}"}</div>`, `{"a":"}"}`, false},
		{"leading html", `<p>{"a":{"b":2}}`, `{"a":{"b":2}}`, false},
		{"escaped quote", `{"a":"x\"}"}tail`, `{"a":"x\"}"}`, false},
		{"no object", `hello`, "", true},
		{"unclosed", `{"a":1`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanJSONResponse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanJSONResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("CleanJSONResponse() = %s, want %s", got, tt.want)
			}
		})
	}
}

func assertDelta(t *testing.T, got, want Delta) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("delta = %v, want %v", got, want)
	}
	for id, w := range want {
		g, ok := got[id]
		if !ok {
			t.Errorf("delta missing socket %d", id)
			continue
		}
		if g != w {
			t.Errorf("delta[%d] = %+v, want %+v", id, g, w)
		}
	}
}
