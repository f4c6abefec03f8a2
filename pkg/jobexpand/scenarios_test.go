// Copyright Contributors to the KubeTask project

package jobexpand_test

import (
	"context"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubetask/jobexpander/pkg/apptemplate"
	"github.com/kubetask/jobexpander/pkg/cmdline"
	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobexpand"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
)

var _ = Describe("Parametric sweep", func() {
	It("zero-pads the sweep index into the command line", func() {
		job := jobmodel.Doc{
			"taskFactory": jobmodel.Doc{
				"type": "parametricSweep",
				"parameterSets": []any{
					jobmodel.Doc{"start": float64(1), "end": float64(3)},
				},
				"repeatTask": jobmodel.Doc{"commandLine": "echo {0:3}"},
			},
		}
		tasks, err := jobexpand.ExpandTaskFactory(context.Background(), job, fakeStorage{}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(HaveLen(3))
		Expect(tasks[0]["commandLine"]).To(Equal("echo 001"))
		Expect(tasks[1]["commandLine"]).To(Equal("echo 002"))
		Expect(tasks[2]["commandLine"]).To(Equal("echo 003"))
		Expect(tasks[0]["id"]).To(Equal("0"))
		Expect(job).NotTo(HaveKey("taskFactory"))
	})

	It("builds a merge task depending on the full sweep range", func() {
		job := jobmodel.Doc{
			"taskFactory": jobmodel.Doc{
				"type": "parametricSweep",
				"parameterSets": []any{
					jobmodel.Doc{"start": float64(0), "end": float64(3)},
				},
				"repeatTask": jobmodel.Doc{"commandLine": "echo {0}"},
				"mergeTask":  jobmodel.Doc{"commandLine": "merge"},
			},
		}
		tasks, err := jobexpand.ExpandTaskFactory(context.Background(), job, fakeStorage{}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(HaveLen(5))
		merge := tasks[4]
		Expect(merge["id"]).To(Equal("merge"))
		dependsOn := merge["dependsOn"].(jobmodel.Doc)
		ranges := dependsOn["taskIdRanges"].(jobmodel.Doc)
		Expect(ranges["start"]).To(Equal(0))
		Expect(ranges["end"]).To(Equal(3))
	})
})

var _ = Describe("Template rendering", func() {
	It("resolves a variable defined via a nested concat expression", func() {
		fs := fakeFS{files: map[string][]byte{
			"template.json": []byte(`{
				"parameters": {"n": {"type": "string"}},
				"variables": {"g": "[concat('pre-', parameters('n'))]"},
				"x": "[variables('g')]"
			}`),
			"params.json": []byte(`{"n": "X"}`),
		}}
		rendered, err := jobexpand.ExpandTemplate(context.Background(), "template.json", "params.json", fs, nil, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		doc := rendered.(map[string]any)
		Expect(doc["x"]).To(Equal("pre-X"))
	})

	It("removes quotes around a spliced int parameter", func() {
		fs := fakeFS{files: map[string][]byte{
			"template.json": []byte(`{"parameters": {"k": {"type": "int"}}, "count": "[parameters('k')]"}`),
			"params.json":   []byte(`{"k": 7}`),
		}}
		rendered, err := jobexpand.ExpandTemplate(context.Background(), "template.json", "params.json", fs, nil, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		doc := rendered.(map[string]any)
		Expect(doc["count"]).To(Equal(float64(7)))
	})

	It("removes quotes around a spliced bool parameter", func() {
		fs := fakeFS{files: map[string][]byte{
			"template.json": []byte(`{"parameters": {"k": {"type": "bool"}}, "flag": "[parameters('k')]"}`),
			"params.json":   []byte(`{"k": true}`),
		}}
		rendered, err := jobexpand.ExpandTemplate(context.Background(), "template.json", "params.json", fs, nil, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		doc := rendered.(map[string]any)
		Expect(doc["flag"]).To(Equal(true))
	})
})

var _ = Describe("Application-template property guard", func() {
	It("rejects a job that sets both applicationTemplateInfo and a template-reserved property", func() {
		job := jobmodel.Doc{
			"id":                      "job1",
			"jobManagerTask":          jobmodel.Doc{"commandLine": "echo hi"},
			"applicationTemplateInfo": jobmodel.Doc{"filePath": "app.json"},
		}
		_, err := jobexpand.ExpandApplicationTemplate(context.Background(), job, ".", fakeFS{}, logr.Discard())
		je, ok := err.(*jexerr.Error)
		Expect(ok).To(BeTrue())
		Expect(je.Kind).To(Equal(jexerr.Reserved))
	})

	It("rejects a template file that sets a job-reserved property", func() {
		fs := fakeFS{files: map[string][]byte{
			"app.json": []byte(`{"priority": 200}`),
		}}
		job := jobmodel.Doc{
			"id":                      "job1",
			"applicationTemplateInfo": jobmodel.Doc{"filePath": "app.json"},
		}
		_, err := jobexpand.ExpandApplicationTemplate(context.Background(), job, ".", fs, logr.Discard())
		je, ok := err.(*jexerr.Error)
		Expect(ok).To(BeTrue())
		Expect(je.Kind).To(Equal(jexerr.Reserved))
	})

	It("is idempotent when no applicationTemplateInfo is present", func() {
		job := jobmodel.Doc{"id": "job1"}
		out, err := apptemplate.Merge(context.Background(), job, ".", fakeFS{}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(job))
	})
})

var _ = Describe("Package-reference OS enforcement", func() {
	It("rejects an aptPackage reference on a Windows pool", func() {
		tasks := []jobmodel.Doc{
			{"id": "t1", "commandLine": "./run", "packageReferences": []any{
				jobmodel.Doc{"type": "aptPackage", "id": "curl"},
			}},
		}
		_, err := jobexpand.ProcessTaskPackageReferences(tasks, cmdline.Windows)
		je, ok := err.(*jexerr.Error)
		Expect(ok).To(BeTrue())
		Expect(je.Kind).To(Equal(jexerr.TypeMismatch))
	})

	It("accepts an aptPackage reference on a Linux pool", func() {
		tasks := []jobmodel.Doc{
			{"id": "t1", "commandLine": "./run", "packageReferences": []any{
				jobmodel.Doc{"type": "aptPackage", "id": "curl"},
			}},
		}
		frag, err := jobexpand.ProcessTaskPackageReferences(tasks, cmdline.Linux)
		Expect(err).NotTo(HaveOccurred())
		Expect(frag).NotTo(BeNil())
		Expect(frag.IsWindows).To(BeFalse())
		Expect(tasks[0]).NotTo(HaveKey("packageReferences"))
	})
})

var _ = Describe("Output-file wrapping", func() {
	It("wraps the command line and records the upload config", func() {
		tasks := []jobmodel.Doc{
			{
				"commandLine": "./run",
				"outputFiles": []any{
					jobmodel.Doc{
						"filePattern":   "*.log",
						"destination":   jobmodel.Doc{"container": jobmodel.Doc{"containerSas": "sv=x", "path": "logs"}},
						"uploadDetails": jobmodel.Doc{"taskStatus": "taskCompletion"},
					},
				},
			},
		}
		uploaderConfig := cmdline.NewUploaderConfig("")
		job := jobmodel.Doc{}
		frag, err := jobexpand.ProcessJobForOutputFiles(context.Background(), job, tasks, cmdline.Linux, fakeStorage{}, uploaderConfig)
		Expect(err).NotTo(HaveOccurred())
		Expect(frag).NotTo(BeNil())

		cmdLine, _ := tasks[0]["commandLine"].(string)
		Expect(cmdLine).To(MatchRegexp(`^/bin/bash -c '\./run;err=\$\?;.*uploadfiles\.py \$err;exit \$err'$`))

		env := tasks[0]["environmentSettings"].([]any)
		Expect(env).To(HaveLen(1))
		entry := env[0].(map[string]any)
		Expect(entry["name"]).To(Equal("AZ_BATCH_FILE_UPLOAD_CONFIG"))
	})

	It("also wraps jobManagerTask.outputFiles, even with no tasks carrying them", func() {
		job := jobmodel.Doc{
			"jobManagerTask": jobmodel.Doc{
				"commandLine": "./manage",
				"outputFiles": []any{
					jobmodel.Doc{
						"filePattern":   "*.log",
						"destination":   jobmodel.Doc{"container": jobmodel.Doc{"containerSas": "sv=x", "path": "logs"}},
						"uploadDetails": jobmodel.Doc{"taskStatus": "taskCompletion"},
					},
				},
			},
		}
		tasks := []jobmodel.Doc{{"commandLine": "./run"}}
		frag, err := jobexpand.ProcessJobForOutputFiles(context.Background(), job, tasks, cmdline.Linux, fakeStorage{}, cmdline.NewUploaderConfig(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(frag).NotTo(BeNil())

		jobManagerTask := job["jobManagerTask"].(jobmodel.Doc)
		cmdLine, _ := jobManagerTask["commandLine"].(string)
		Expect(cmdLine).To(MatchRegexp(`^/bin/bash -c '\./manage;err=\$\?;.*uploadfiles\.py \$err;exit \$err'$`))
		Expect(jobManagerTask).NotTo(HaveKey("outputFiles"))

		// The task list itself carried no outputFiles, so it is untouched.
		Expect(tasks[0]["commandLine"]).To(Equal("./run"))
	})

	It("reports no rewrite when neither the job nor any task carries outputFiles", func() {
		job := jobmodel.Doc{}
		tasks := []jobmodel.Doc{{"commandLine": "./run"}}
		frag, err := jobexpand.ProcessJobForOutputFiles(context.Background(), job, tasks, cmdline.Linux, fakeStorage{}, cmdline.NewUploaderConfig(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(frag).To(BeNil())
	})
})

var _ = Describe("ShouldGetPool", func() {
	It("is true when a task carries packageReferences", func() {
		tasks := []jobmodel.Doc{{"packageReferences": []any{jobmodel.Doc{"type": "aptPackage", "id": "x"}}}}
		Expect(jobexpand.ShouldGetPool(tasks)).To(BeTrue())
	})

	It("is false for a plain task", func() {
		tasks := []jobmodel.Doc{{"commandLine": "./run"}}
		Expect(jobexpand.ShouldGetPool(tasks)).To(BeFalse())
	})
})

var _ = Describe("PostProcessing", func() {
	It("resolves resourceFiles through the storage collaborator", func() {
		storage := fakeStorage{}
		doc := jobmodel.Doc{"resourceFiles": []any{jobmodel.Doc{"filePath": "a"}}}
		out, err := jobexpand.PostProcessing(context.Background(), doc, storage)
		Expect(err).NotTo(HaveOccurred())
		m := out.(map[string]any)
		Expect(m["resourceFiles"]).To(HaveLen(1))
	})
})
