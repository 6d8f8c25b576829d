package service

import (
	"testing"

	"Script2Video-server/models"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name  string
		scene models.Scene
		want  string
	}{
		{
			name: "人物设定拼在场景文本前",
			scene: models.Scene{
				CharacterPrompt: "A young astronaut with a red helmet",
				TextContent:     "She floats past the space station window",
			},
			want: "A young astronaut with a red helmet. She floats past the space station window",
		},
		{
			name:  "没有人物设定时只用场景文本",
			scene: models.Scene{TextContent: "A city skyline at dusk"},
			want:  "A city skyline at dusk",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildPrompt(&tt.scene); got != tt.want {
				t.Errorf("BuildPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvKeyName(t *testing.T) {
	tests := []struct {
		service string
		want    string
	}{
		{"video-generation", "VIDEO_GENERATION_API_KEY"},
		{"video-render", "VIDEO_RENDER_API_KEY"},
		{"script-analysis", "SCRIPT_ANALYSIS_API_KEY"},
	}
	for _, tt := range tests {
		if got := envKeyName(tt.service); got != tt.want {
			t.Errorf("envKeyName(%q) = %q, want %q", tt.service, got, tt.want)
		}
	}
}
