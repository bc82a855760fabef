package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// mustBindFlag binds a flag to its viper key. Flag registration happens in
// init, so a missing flag or a duplicate binding is a programming error.
func mustBindFlag(key string, fs *pflag.FlagSet, name string) {
	flag := fs.Lookup(name)
	if flag == nil {
		panic(fmt.Sprintf("flag %q is not registered", name))
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %q: %v", name, err))
	}
}
