// Package clinote classifies clinical notes into medical specialties with a
// model fine-tuned by the clinote sweep, and explains its predictions.
//
// Quick start:
//
//	c, err := clinote.Open("models/pubmedbert_notes_preprocess")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	p, _ := c.Classify("Patient reports crushing chest pain radiating to the left arm.")
//	fmt.Println(p.Label) // Cardiovascular / Pulmonary
//
//	x, _ := c.Explain(p.Text, "explanation.html")
//	fmt.Println(x.Labels[0].Weights[0].Word)
//
// A Classifier is safe for concurrent use. Open is expensive (it starts an
// ONNX Runtime session); open once and reuse.
package clinote
