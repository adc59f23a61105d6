package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gwillem/zarr2lerobot/pkg/features"
)

// Layout constants of the LeRobot v2.0 format.
const (
	CodebaseVersion  = "v2.0"
	DefaultChunkSize = 1000

	DataPathTemplate  = "data/chunk-{episode_chunk:03d}/episode_{episode_index:06d}.parquet"
	VideoPathTemplate = "videos/chunk-{episode_chunk:03d}/{video_key}/episode_{episode_index:06d}.mp4"

	InfoPath     = "meta/info.json"
	EpisodesPath = "meta/episodes.jsonl"
	TasksPath    = "meta/tasks.jsonl"
	StatsPath    = "meta/stats.json"
)

// Info is the content of meta/info.json.
type Info struct {
	CodebaseVersion string            `json:"codebase_version"`
	RobotType       string            `json:"robot_type"`
	TotalEpisodes   int               `json:"total_episodes"`
	TotalFrames     int               `json:"total_frames"`
	TotalTasks      int               `json:"total_tasks"`
	TotalVideos     int               `json:"total_videos"`
	TotalChunks     int               `json:"total_chunks"`
	ChunksSize      int               `json:"chunks_size"`
	FPS             int               `json:"fps"`
	Splits          map[string]string `json:"splits"`
	DataPath        string            `json:"data_path"`
	VideoPath       *string           `json:"video_path"`
	Features        features.Features `json:"features"`
}

// EpisodeEntry is one line of meta/episodes.jsonl.
type EpisodeEntry struct {
	EpisodeIndex int      `json:"episode_index"`
	Tasks        []string `json:"tasks"`
	Length       int      `json:"length"`
}

// TaskEntry is one line of meta/tasks.jsonl.
type TaskEntry struct {
	TaskIndex int    `json:"task_index"`
	Task      string `json:"task"`
}

func episodeChunk(episode, chunkSize int) int {
	return episode / chunkSize
}

func dataFile(episode, chunkSize int) string {
	return fmt.Sprintf("data/chunk-%03d/episode_%06d.parquet", episodeChunk(episode, chunkSize), episode)
}

func videoFile(key string, episode, chunkSize int) string {
	return fmt.Sprintf("videos/chunk-%03d/%s/episode_%06d.mp4", episodeChunk(episode, chunkSize), key, episode)
}

func imageDir(key string, episode int) string {
	return fmt.Sprintf("images/%s/episode_%06d", key, episode)
}

func imageFile(key string, episode, frame int) string {
	return fmt.Sprintf("%s/frame_%06d.png", imageDir(key, episode), frame)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func appendJSONLine(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", filepath.Base(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
