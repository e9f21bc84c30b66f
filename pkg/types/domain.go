package types

// Model represents a model file discovered on disk.
type Model struct {
	// Stable identifier for the model (file name).
	// example: gemma-2b-it-q4.gguf
	ID string `json:"id" example:"gemma-2b-it-q4.gguf"`
	// Human-friendly name.
	// example: gemma-2b-it-q4
	Name string `json:"name" example:"gemma-2b-it-q4"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/gemma-2b-it-q4.gguf
	Path string `json:"path" example:"/home/user/models/gemma-2b-it-q4.gguf"`
	// Size of the file in bytes.
	// example: 629145600
	SizeBytes int64 `json:"size_bytes" example:"629145600"`
}
