// Package resolver turns a part's type identifier and property bag into an
// executable step.
//
// Lookup order: flow scripts ("Scripts.<name>"), the compiled-in registry,
// then plugin bundles declared by plugin.toml manifests under the config
// directory. The bundle scan runs once per Resolver.
package resolver
