package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestBasicStatsRate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
	}{
		{"throughput_pps only", `{"throughput_pps":12.5}`, 12.5},
		{"packets_per_second only", `{"packets_per_second":7}`, 7},
		{"packets_per_second wins", `{"packets_per_second":7,"throughput_pps":12.5}`, 7},
		{"neither", `{"total_packets":10}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s BasicStats
			if err := json.Unmarshal([]byte(tt.payload), &s); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got := s.Rate(); got != tt.want {
				t.Errorf("Expected rate %v, got %v", tt.want, got)
			}
		})
	}
}

func TestProtocolDistributionDecoding(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
		isNil   bool
	}{
		{"null", `{"protocol_distribution":null}`, nil, true},
		{"absent", `{}`, nil, true},
		{"empty object", `{"protocol_distribution":{}}`, []string{}, false},
		{"service order", `{"protocol_distribution":{"UDP":{"count":2},"TCP":{"count":8},"DNS":{"count":1}}}`, []string{"UDP", "TCP", "DNS"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a AnalysisResult
			if err := json.Unmarshal([]byte(tt.payload), &a); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if (a.ProtocolDistribution == nil) != tt.isNil {
				t.Fatalf("Expected nil=%v, got %#v", tt.isNil, a.ProtocolDistribution)
			}
			got := []string{}
			for _, share := range a.ProtocolDistribution {
				got = append(got, share.Protocol)
			}
			if !tt.isNil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected order %v, got %v", tt.want, got)
			}
			if len(a.Skipped) != 0 {
				t.Errorf("Expected nothing skipped, got %v", a.Skipped)
			}
		})
	}
}

func TestAnalysisResultSkipsBadSections(t *testing.T) {
	payload := `{
		"basic_stats":{"total_packets":10},
		"protocol_distribution":["TCP"],
		"ip_conversations":[{"ips":["10.0.0.1","10.0.0.2"],"packets":4}],
		"tcp_streams":{"not":"a list"},
		"kpis":{"connection_success_rate":"fast"},
		"timeline":[{"timestamp":"yesterday","packets":3}]
	}`
	var a AnalysisResult
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if a.BasicStats == nil || a.BasicStats.TotalPackets != 10 {
		t.Errorf("Expected basic stats, got %+v", a.BasicStats)
	}
	if len(a.IPConversations) != 1 {
		t.Errorf("Expected one conversation, got %+v", a.IPConversations)
	}
	if a.ProtocolDistribution != nil || a.TCPStreams != nil || a.KPIs != nil {
		t.Errorf("Expected bad sections to be absent, got %+v", a)
	}
	if len(a.Timeline) != 1 || !a.Timeline[0].Timestamp.IsZero() {
		t.Errorf("Expected the undated sample to be kept, got %+v", a.Timeline)
	}
	want := []string{"protocol_distribution", "tcp_streams", "kpis"}
	if !reflect.DeepEqual(a.Skipped, want) {
		t.Errorf("Expected skipped %v, got %v", want, a.Skipped)
	}
}

func TestAnalysisResultRejectsNonObject(t *testing.T) {
	var a AnalysisResult
	if err := json.Unmarshal([]byte(`"done"`), &a); err == nil {
		t.Error("Expected an error for a non-object analysis")
	}
}

func TestFilterResultDecoding(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		count   int64
		empty   bool
		skipped []string
	}{
		{"packet_count", `{"protocol":"TCP","packet_count":12}`, 12, false, nil},
		{"filtered_packet_count", `{"protocol":"TCP","filtered_packet_count":7}`, 7, false, nil},
		{"packet_count wins", `{"protocol":"TCP","packet_count":12,"filtered_packet_count":7}`, 12, false, nil},
		{"no match", `{"protocol":"ICMP","error":"No ICMP packets found"}`, 0, true, nil},
		{"bad timeline", `{"protocol":"UDP","packet_count":3,"timeline":"n/a"}`, 3, false, []string{"timeline"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r FilterResult
			if err := json.Unmarshal([]byte(tt.payload), &r); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if r.PacketCount != tt.count {
				t.Errorf("Expected count %d, got %d", tt.count, r.PacketCount)
			}
			if r.Empty() != tt.empty {
				t.Errorf("Expected Empty()=%v", tt.empty)
			}
			if !reflect.DeepEqual(r.Skipped, tt.skipped) {
				t.Errorf("Expected skipped %v, got %v", tt.skipped, r.Skipped)
			}
		})
	}
}

func TestConversationAddresses(t *testing.T) {
	tests := []struct {
		name string
		conv IPConversation
		a, b string
		ok   bool
	}{
		{"ips", IPConversation{IPs: []string{"10.0.0.1", "10.0.0.2"}}, "10.0.0.1", "10.0.0.2", true},
		{"endpoints label", IPConversation{Endpoints: "10.0.0.1 ↔ 10.0.0.2"}, "10.0.0.1", "10.0.0.2", true},
		{"one ip", IPConversation{IPs: []string{"10.0.0.1"}}, "", "", false},
		{"blank side", IPConversation{IPs: []string{"10.0.0.1", ""}}, "10.0.0.1", "", false},
		{"unsplittable label", IPConversation{Endpoints: "10.0.0.1"}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, ok := tt.conv.Addresses()
			if a != tt.a || b != tt.b || ok != tt.ok {
				t.Errorf("Expected (%q, %q, %v), got (%q, %q, %v)", tt.a, tt.b, tt.ok, a, b, ok)
			}
		})
	}
}
