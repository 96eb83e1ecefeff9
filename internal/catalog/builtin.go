package catalog

import "genelab/internal/model"

var defaultGenes = []model.Gene{
	{ID: "neural_processor", Name: "Neural Processor", Functionality: "signal_integration", Complexity: 72},
	{ID: "quantum_entangler", Name: "Quantum Entangler", Functionality: "state_correlation", Complexity: 88},
	{ID: "consciousness_core", Name: "Consciousness Core", Functionality: "self_model", Complexity: 95},
	{ID: "adaptive_memory", Name: "Adaptive Memory", Functionality: "pattern_retention", Complexity: 64},
	{ID: "immune_system", Name: "Immune System", Functionality: "anomaly_rejection", Complexity: 55},
	{ID: "evolution_engine", Name: "Evolution Engine", Functionality: "self_modification", Complexity: 80},
	{ID: "compatibility_gene", Name: "Compatibility Gene", Functionality: "environment_probe", Complexity: 35},
	{ID: "platform_detection_gene", Name: "Platform Detection", Functionality: "environment_probe", Complexity: 30},
	{ID: "mobile_adaptation_gene", Name: "Mobile Adaptation", Functionality: "resource_scaling", Complexity: 42},
	{ID: "linux_optimization_gene", Name: "Linux Optimization", Functionality: "scheduler_tuning", Complexity: 48},
	{ID: "mac_integration_gene", Name: "Mac Integration", Functionality: "host_bridge", Complexity: 40},
	{ID: "pc_enhancement_gene", Name: "PC Enhancement", Functionality: "throughput_boost", Complexity: 45},
	{ID: "fallback_compatibility_gene", Name: "Fallback Compatibility", Functionality: "graceful_degradation", Complexity: 25},
	{ID: "collaborative_detection_gene", Name: "Collaborative Detection", Functionality: "peer_discovery", Complexity: 58},
}

// Fixed list consulted by the add and replace mutation operators.
var mutationGenes = []model.Gene{
	{ID: "mut_enhance", Name: "Enhance", Functionality: "amplify", Complexity: 20},
	{ID: "mut_optimize", Name: "Optimize", Functionality: "streamline", Complexity: 35},
	{ID: "mut_adapt", Name: "Adapt", Functionality: "reconfigure", Complexity: 50},
	{ID: "mut_evolve", Name: "Evolve", Functionality: "self_modification", Complexity: 65},
	{ID: "mut_strengthen", Name: "Strengthen", Functionality: "harden", Complexity: 40},
}

var (
	defaultCatalog  = MustNew(defaultGenes)
	mutationCatalog = MustNew(mutationGenes)
)

// Default returns the built-in seed catalog.
func Default() Catalog {
	return defaultCatalog
}

// Mutations returns the fixed internal mutation catalog.
func Mutations() Catalog {
	return mutationCatalog
}
