package engine

// Config controls sandbox engine behavior.
type Config struct {
	HelperPath     string `yaml:"helperPath"`
	CgroupRoot     string `yaml:"cgroupRoot"`
	SeccompProfile string `yaml:"seccompProfile"`
	EnableSeccomp  bool   `yaml:"enableSeccomp"`
	EnableCgroup   bool   `yaml:"enableCgroup"`
}

const (
	defaultHelperPath = "sandbox-init"
	defaultCgroupRoot = "/sys/fs/cgroup/chiko"
)

func (c Config) withDefaults() Config {
	if c.HelperPath == "" {
		c.HelperPath = defaultHelperPath
	}
	if c.CgroupRoot == "" {
		c.CgroupRoot = defaultCgroupRoot
	}
	return c
}
