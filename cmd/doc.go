/*
Command examples:

	// Serve with the configuration in .modloader.yml
	modloader serve

	// Serve on another port, preloading only common modules
	MODLOADER_PRELOAD_STRATEGY=tag-filtered MODLOADER_PRELOAD_ALLOW_TAGS=common modloader serve -p 3000

	// Show modules as YAML
	modloader list -o yaml

	// Load the module behind a route, giving up after two seconds
	modloader resolve /reports/monthly --timeout 2s

	// Try the signal-aware strategy on a simulated 2g connection
	modloader preload --strategy signal-aware --network 2g

Every command that touches modules reads the same configuration, so list,
resolve and preload report what serve would do.
*/
package cmd
