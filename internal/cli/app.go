package cli

import (
	"github.com/spf13/cobra"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/config"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/daemon"
)

// openApp builds the engine bundle for a one-shot command. The returned
// closer must run before the command exits.
func openApp(cmd *cobra.Command) (*daemon.App, func(), error) {
	home := config.MustHomeFrom(cmd.Context())
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := daemon.OpenStore(cmd.Context(), home, cfg)
	if err != nil {
		return nil, nil, err
	}
	app := daemon.NewApp(st, cfg, nil, nil)
	return app, func() { _ = st.Close() }, nil
}
