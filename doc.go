// Package zarr2lerobot converts diffusion-policy replay buffers into
// HuggingFace LeRobot v2.0 datasets.
//
// The replay buffer is a Zarr v2 directory store with per-frame arrays under
// data/ and episode boundaries in meta/episode_ends. Each episode becomes one
// parquet file, with camera frames stored as PNG images or mp4 videos.
//
// # Installation
//
//	go install github.com/gwillem/zarr2lerobot/cmd/lerobot-convert@latest
//
// # Usage
//
// Write a configuration file and check the source store:
//
//	lerobot-convert init
//	lerobot-convert inspect ../data/datasets/scara-push-v0-render-v0.zarr
//
// Then convert:
//
//	lerobot-convert convert --mode image --mode video
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lerobot-convert: CLI with convert, inspect, features and init commands
//   - pkg/zarr: Zarr v2 store reader and fixture writer
//   - pkg/replay: Replay buffer access on top of pkg/zarr
//   - pkg/episode: Episode segmentation from episode ends
//   - pkg/features: Dataset feature schema per observation mode
//   - pkg/convert: Conversion driver
//   - pkg/dataset: LeRobot v2.0 dataset writer
//   - pkg/robot: Axis names, robot type and value ranges
//   - pkg/config, pkg/logging, pkg/metrics: Configuration, logging and metrics
package zarr2lerobot
