package seed

// File is the top-level structure of a seed file.
type File struct {
	Resources []Entry `yaml:"resources"`
}

// Entry is one uri to register.
type Entry struct {
	URI      string            `yaml:"uri"`
	Status   int               `yaml:"status,omitempty"` // defaults to 200
	Location string            `yaml:"location,omitempty"`
	Tags     []string          `yaml:"tags,omitempty"`
	Pairs    map[string]string `yaml:"pairs,omitempty"`
	Reduce   *bool             `yaml:"reduce,omitempty"` // defaults to true
}
