package interp

// Prompt templates for the fixed interpretation and scoring contract.
// Both instruct the model to answer with a single JSON object so the
// response can be parsed without free-text heuristics.

const interpretSystemPrompt = `You are an expert at interpreting the latent features of a sparse autoencoder trained on sentence embeddings. Each feature fires on some sentences and stays at zero on others. Given contrastive evidence, you name the semantic concept the feature detects.`

const interpretUserPrompt = `A single autoencoder feature produced the activations below.

**Sentences where the feature fires (activation value in parentheses):**
%s

**Sentences where the feature is exactly zero:**
%s

Identify the concept that separates the firing sentences from the zero sentences.

Respond in JSON format:
{
  "label": "short name for the concept",
  "reasoning": "brief explanation of the evidence",
  "attributes": ["distinguishing textual attribute", "..."]
}

**Interpretation:**`

const scoreSystemPrompt = `You are an expert evaluator. You judge how strongly a set of sentences exhibits a given list of textual attributes.`

const scoreUserPrompt = `**Attributes:**
%s

**Sentences:**
%s

Estimate the percentage of these sentences that match the attributes, from 0 (none match) to 100 (all match strongly).

Respond in JSON format:
{
  "percent": 0-100
}

**Evaluation:**`
