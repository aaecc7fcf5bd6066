package bank

import "time"

// seedEpoch is the CreatedAt stamped on every built-in question.
var seedEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// seedQuestions is the built-in offline set installed when the persisted
// bank is missing, unreadable or empty. It spans several chapters so the
// balancer has something to balance from the first request on.
var seedQuestions = []Record{
	{
		ChapterTag:   "ai-overview",
		PromptText:   "Which term describes a system that performs tasks normally requiring human intelligence?",
		Choices:      []string{"Artificial intelligence", "Compiler", "Relational database", "Operating system"},
		CorrectIndex: 0,
		Explanation:  "Artificial intelligence is the general term for systems that perform tasks such as reasoning, perception and language understanding.",
		Difficulty:   "basic",
	},
	{
		ChapterTag:   "ai-overview",
		PromptText:   "What was the Dartmouth workshop of 1956 best known for?",
		Choices:      []string{"Inventing backpropagation", "Releasing ImageNet", "Coining the term artificial intelligence", "Proposing the transformer"},
		CorrectIndex: 2,
		Explanation:  "The 1956 Dartmouth summer research project is where the phrase artificial intelligence was introduced.",
		Difficulty:   "standard",
	},
	{
		ChapterTag:   "machine-learning",
		PromptText:   "Which learning setting trains a model on input-output pairs with known labels?",
		Choices:      []string{"Unsupervised learning", "Supervised learning", "Reinforcement learning", "Self-play"},
		CorrectIndex: 1,
		Explanation:  "Supervised learning fits a mapping from inputs to labelled targets.",
		Difficulty:   "basic",
	},
	{
		ChapterTag:   "machine-learning",
		PromptText:   "A model that scores well on training data but poorly on unseen data is said to be doing what?",
		Choices:      []string{"Underfitting", "Regularizing", "Normalizing", "Overfitting"},
		CorrectIndex: 3,
		Explanation:  "Overfitting means the model memorized the training set instead of learning patterns that generalize.",
		Difficulty:   "basic",
	},
	{
		ChapterTag:   "deep-learning",
		PromptText:   "Which algorithm computes gradients of the loss with respect to every weight of a neural network?",
		Choices:      []string{"k-means", "Apriori", "Backpropagation", "Dijkstra's algorithm"},
		CorrectIndex: 2,
		Explanation:  "Backpropagation applies the chain rule layer by layer to obtain all weight gradients.",
		Difficulty:   "standard",
	},
	{
		ChapterTag:   "deep-learning",
		PromptText:   "Which activation function outputs max(0, x)?",
		Choices:      []string{"ReLU", "Sigmoid", "Tanh", "Softmax"},
		CorrectIndex: 0,
		Explanation:  "The rectified linear unit passes positive inputs unchanged and clamps negatives to zero.",
		Difficulty:   "basic",
	},
	{
		ChapterTag:   "deep-learning-applications",
		PromptText:   "Which architecture relies on self-attention instead of recurrence to process sequences?",
		Choices:      []string{"LSTM", "Convolutional autoencoder", "Restricted Boltzmann machine", "Transformer"},
		CorrectIndex: 3,
		Explanation:  "The transformer replaces recurrence with self-attention so every position can attend to every other.",
		Difficulty:   "standard",
	},
	{
		ChapterTag:   "law-and-ethics",
		PromptText:   "Which concern describes a model systematically disadvantaging a group of people?",
		Choices:      []string{"Gradient vanishing", "Algorithmic bias", "Data augmentation", "Model distillation"},
		CorrectIndex: 1,
		Explanation:  "Algorithmic bias is unfair, systematic skew in outcomes, often inherited from the training data.",
		Difficulty:   "basic",
	},
}

// SeedRecords returns a fresh copy of the built-in questions with their
// IDs, origin and timestamp filled in.
func SeedRecords() []Record {
	out := make([]Record, len(seedQuestions))
	for i, q := range seedQuestions {
		q.Choices = append([]string(nil), q.Choices...)
		q.ID = KeyOf(q.PromptText)
		q.Origin = OriginOfflineSeed
		q.CreatedAt = seedEpoch
		out[i] = q
	}
	return out
}
