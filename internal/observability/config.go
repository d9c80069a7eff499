package observability

// Config captures opt-in observability toggles that wire into the HTTP surface.
type Config struct {
	// EnablePprof mounts net/http/pprof under /debug/pprof/.
	EnablePprof bool `yaml:"pprof" json:"pprof" env:"REWIND_ENABLE_PPROF"`
}
