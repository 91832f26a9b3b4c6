// Package environment names the deployment stages subsyncd knows about and parses
// the APP_ENV setting into one of them.
//
//	env := environment.Parse(os.Getenv("APP_ENV"))
//	if env.IsProduction() {
//	    // JSON logs, no debug output
//	}
package environment
