package recorder

import (
	"strings"
	"testing"
)

func containsAll(args []string, want ...string) bool {
	joined := strings.Join(args, " ")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			return false
		}
	}
	return true
}

func TestBuildArgvTSSegmented(t *testing.T) {
	args := BuildArgv(BuildArgs{
		MediaURL: "https://media.example/x.m3u8", OutputPath: "out-%d.ts",
		Container: ContainerTS, Segment: true, SegmentSecs: 1800, SegmentStart: 1,
	})
	if !containsAll(args, "-f", "segment", "-segment_time", "1800", "-segment_start_number", "1", "-reset_timestamps", "1") {
		t.Errorf("BuildArgv() missing segment flags: %v", args)
	}
}

func TestBuildArgvTSRaw(t *testing.T) {
	args := BuildArgv(BuildArgs{
		MediaURL: "https://media.example/x.m3u8", OutputPath: "out.ts", Container: ContainerTS,
	})
	if !containsAll(args, "-f", "mpegts", "-c", "copy") {
		t.Errorf("BuildArgv() missing raw mpegts flags: %v", args)
	}
}

func TestBuildArgvMP4SegmentedUsesFragMoov(t *testing.T) {
	args := BuildArgv(BuildArgs{
		MediaURL: "u", OutputPath: "o", Container: ContainerMP4, Segment: true, SegmentSecs: 600, SegmentStart: 1,
	})
	if !containsAll(args, "frag_keyframe+empty_moov") {
		t.Errorf("BuildArgv() missing frag_keyframe+empty_moov for segmented MP4: %v", args)
	}
}

func TestBuildArgvAudioContainers(t *testing.T) {
	for _, c := range []Container{ContainerMP3, ContainerM4A} {
		args := BuildArgv(BuildArgs{MediaURL: "u", OutputPath: "o", Container: c})
		if !containsAll(args, "-map", "0:a", "-b:a", "320k") {
			t.Errorf("BuildArgv(%v) missing audio flags: %v", c, args)
		}
	}
}

func TestBuildArgvFLVUsesHTTPFetcher(t *testing.T) {
	args := BuildArgv(BuildArgs{MediaURL: "https://flv.example/x.flv", OutputPath: "o.flv", Container: ContainerFLV})
	if len(args) != 5 || args[0] != "-i" {
		t.Errorf("BuildArgv(FLV) = %v, want minimal fetch-and-copy argv", args)
	}
}

func TestBuildArgvOverseasWidensTimeouts(t *testing.T) {
	domestic := BuildArgv(BuildArgs{MediaURL: "u", OutputPath: "o", Container: ContainerTS})
	overseas := BuildArgv(BuildArgs{MediaURL: "u", OutputPath: "o", Container: ContainerTS, Overseas: true})
	if strings.Join(domestic, " ") == strings.Join(overseas, " ") {
		t.Error("overseas argv should differ from domestic (wider timeouts/buffer)")
	}
}
